// Package logger adapts common logging libraries to pagedb.Logger.
//
// The standard library's *slog.Logger already implements pagedb.Logger.
//
// Example with zap:
//
//	zapLogger, _ := zap.NewProduction()
//	db, err := pagedb.Open("data", pagedb.WithLogger(logger.NewZap(zapLogger)))
//	if err != nil {
//	    panic(err)
//	}
//	defer db.Close()
package logger
