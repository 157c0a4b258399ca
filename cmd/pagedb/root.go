package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pagedb"
	"pagedb/logger"
)

// app holds the global flags and the database opened for the running
// command.
type app struct {
	dir       string
	degree    int
	pageCache int
	logKind   string
	stats     bool

	log pagedb.Logger
	db  *pagedb.DB
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pagedb",
		Short:         "Record store indexed by a paged b-tree",
		Long:          "pagedb stores fixed-size records in block files and indexes them with a b-tree whose nodes live one per page file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.dir, "dir", "data", "database directory")
	flags.IntVar(&a.degree, "degree", 0, fmt.Sprintf("minimum degree of a new tree (default %d, existing trees keep theirs)", pagedb.DefaultDegree))
	flags.IntVar(&a.pageCache, "page-cache", 0, "node pages cached across transactions")
	flags.StringVar(&a.logKind, "log", "none", "logger: zap, logrus or none")
	flags.BoolVar(&a.stats, "stats", false, "print I/O statistics after each operation")

	root.AddCommand(
		a.insertCmd(),
		a.searchCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.printCmd(),
		a.dumpCmd(),
		a.statsCmd(),
		a.loadCmd(),
		a.generateCmd(),
		a.replayCmd(),
		a.serveCmd(),
	)
	return root
}

func newLogger(kind string, w io.Writer) (pagedb.Logger, error) {
	switch kind {
	case "none", "":
		return pagedb.DiscardLogger{}, nil
	case "zap":
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return logger.NewZap(l), nil
	case "logrus":
		l := logrus.New()
		l.SetOutput(w)
		return logger.NewLogrus(l), nil
	default:
		return nil, fmt.Errorf("unknown logger %q", kind)
	}
}

func (a *app) open(stderr io.Writer) error {
	log, err := newLogger(a.logKind, stderr)
	if err != nil {
		return err
	}
	a.log = log

	opts := []pagedb.Option{
		pagedb.WithLogger(log),
		pagedb.WithPageCacheSize(a.pageCache),
	}
	if a.degree != 0 {
		opts = append(opts, pagedb.WithDegree(a.degree))
	}

	db, err := pagedb.Open(a.dir, opts...)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// withDB opens the database around fn and closes it even when fn fails.
func (a *app) withDB(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := a.open(cmd.ErrOrStderr()); err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.close())
		}()
		return fn(cmd, args)
	}
}
