package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pagedb"
	"pagedb/internal/workload"
	"pagedb/server"
)

// parse builds a command from an operation name and its arguments, using the
// same grammar as replay files.
func parse(op workload.Op, args []string) (workload.Command, error) {
	c, _, err := workload.ParseCommand(string(op) + " " + strings.Join(args, " "))
	return c, err
}

func (a *app) pointCmd(op workload.Op, use, short string, nargs int) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: a.withDB(func(cmd *cobra.Command, args []string) error {
			c, err := parse(op, args)
			if err != nil {
				return err
			}
			return a.exec(cmd.OutOrStdout(), c)
		}),
	}
}

func (a *app) insertCmd() *cobra.Command {
	return a.pointCmd(workload.OpInsert, "insert [first] [second] [third] [key]", "Insert a record", 4)
}

func (a *app) searchCmd() *cobra.Command {
	return a.pointCmd(workload.OpSearch, "search [key]", "Print the record stored under a key", 1)
}

func (a *app) updateCmd() *cobra.Command {
	return a.pointCmd(workload.OpUpdate, "update [key] [first] [second] [third]", "Overwrite the record stored under a key", 4)
}

func (a *app) deleteCmd() *cobra.Command {
	return a.pointCmd(workload.OpDelete, "delete [key]", "Delete the record stored under a key", 1)
}

func (a *app) printCmd() *cobra.Command {
	return a.pointCmd(workload.OpPrint, "print [block]", "Print every slot of a record block", 1)
}

func (a *app) dumpCmd() *cobra.Command {
	return a.pointCmd(workload.OpDump, "dump", "Print every node of the index", 0)
}

func (a *app) statsCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print I/O statistics",
		Args:  cobra.NoArgs,
		RunE: a.withDB(func(cmd *cobra.Command, args []string) error {
			printStats(cmd.OutOrStdout(), a.db.Stats())
			if reset {
				a.db.ResetStats()
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "zero the counters after printing")
	return cmd
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Rebuild the index from the record blocks",
		Args:  cobra.NoArgs,
		RunE: a.withDB(func(cmd *cobra.Command, args []string) error {
			n, err := a.db.Rebuild()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d records\n", n)
			return nil
		}),
	}
}

func (a *app) generateCmd() *cobra.Command {
	var (
		count int
		seed  uint64
		keys  string
		from  int32
		limit int32
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Insert generated records",
		Args:  cobra.NoArgs,
		RunE: a.withDB(func(cmd *cobra.Command, args []string) error {
			var src workload.KeySource
			switch keys {
			case "random":
				src = workload.NewRandomKeys(seed, limit)
			case "sequential":
				src = workload.NewSequentialKeys(pagedb.Key(from), pagedb.Key(math.MaxInt32))
			default:
				return fmt.Errorf("unknown key source %q", keys)
			}
			gen := workload.Records(src, rand.New(rand.NewPCG(seed, seed+1)))

			var inserted, skipped int
			err := a.db.Update(func(tx *pagedb.Tx) error {
				for inserted+skipped < count {
					r, ok := gen.Next()
					if !ok {
						break
					}
					_, err := tx.Insert(r)
					if errors.Is(err, pagedb.ErrDuplicateKey) {
						skipped++
						continue
					}
					if err != nil {
						return err
					}
					inserted++
				}
				return nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "inserted %d records, skipped %d existing keys\n", inserted, skipped)
			if a.stats {
				a.reportStats(out)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&count, "count", 100, "number of records")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&keys, "keys", "random", "key source: random or sequential")
	cmd.Flags().Int32Var(&from, "from", 0, "first key of a sequential source")
	cmd.Flags().Int32Var(&limit, "max", math.MaxInt32, "random keys are drawn from [0, max)")
	return cmd
}

func (a *app) replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [file]",
		Short: "Run the commands of a file, one per line",
		Long: "Runs insert, search, update, delete, print, dump and stats commands from a file. " +
			"Lookup failures and malformed lines are reported and skipped.",
		Args: cobra.ExactArgs(1),
		RunE: a.withDB(func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return a.replay(cmd.OutOrStdout(), f)
		}),
	}
}

func (a *app) replay(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		c, ok, err := workload.ParseCommand(scanner.Text())
		if err == nil && ok {
			err = a.exec(w, c)
		}
		if err == nil {
			continue
		}
		if !reportable(err) {
			return fmt.Errorf("line %d: %w", line, err)
		}
		fmt.Fprintf(w, "line %d: %v\n", line, err)
	}
	return scanner.Err()
}

// reportable reports whether err concerns a single command rather than the
// database as a whole.
func reportable(err error) bool {
	for _, target := range []error{
		workload.ErrInvalidCommand,
		pagedb.ErrKeyNotFound,
		pagedb.ErrRecordNotFound,
		pagedb.ErrDuplicateKey,
		pagedb.ErrKeyMismatch,
		pagedb.ErrInvalidRecord,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the database over HTTP",
		Args:  cobra.NoArgs,
		RunE: a.withDB(func(cmd *cobra.Command, args []string) error {
			srv := server.New(a.db, a.log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				_ = srv.Shutdown()
			}()

			a.log.Info("listening", "addr", addr)
			return srv.Listen(addr)
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", ":3000", "listen address")
	return cmd
}

// exec runs one command against the open database and prints its outcome.
func (a *app) exec(w io.Writer, c workload.Command) error {
	switch c.Op {
	case workload.OpInsert:
		loc, err := a.db.Insert(c.Record)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "inserted %v at location %d\n", c.Record, loc)
	case workload.OpSearch:
		r, err := a.db.Search(c.Key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "found %v\n", r)
	case workload.OpUpdate:
		if err := a.db.Replace(c.Key, c.Record); err != nil {
			return err
		}
		fmt.Fprintf(w, "updated key %d to %v\n", c.Key, c.Record)
	case workload.OpDelete:
		loc, err := a.db.Delete(c.Key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "deleted key %d from location %d\n", c.Key, loc)
	case workload.OpPrint:
		slots, err := a.db.Block(c.Block)
		if err != nil {
			return err
		}
		printBlock(w, c.Block, slots)
	case workload.OpDump:
		nodes, err := a.db.Dump()
		if err != nil {
			return err
		}
		printTree(w, nodes)
	case workload.OpStats:
		printStats(w, a.db.Stats())
		return nil
	}

	if a.stats {
		a.reportStats(w)
	}
	return nil
}

// reportStats prints the counters of the last operation and starts new ones.
func (a *app) reportStats(w io.Writer) {
	printStats(w, a.db.Stats())
	a.db.ResetStats()
}

func printStats(w io.Writer, s pagedb.Stats) {
	fmt.Fprintf(w, "record reads: %d\n", s.RecordReads)
	fmt.Fprintf(w, "record writes: %d\n", s.RecordWrites)
	fmt.Fprintf(w, "node reads: %d\n", s.NodeReads)
	fmt.Fprintf(w, "node writes: %d\n", s.NodeWrites)
	if s.PageCacheHits > 0 {
		fmt.Fprintf(w, "page cache hits: %d\n", s.PageCacheHits)
	}
}

func printBlock(w io.Writer, n int32, slots []pagedb.Record) {
	fmt.Fprintf(w, "block %d: %d slots\n", n, len(slots))
	first := pagedb.Location(n) * pagedb.RecordsPerBlock
	for i, r := range slots {
		if r.IsTombstone() {
			fmt.Fprintf(w, "  location %d: deleted\n", first+pagedb.Location(i))
			continue
		}
		fmt.Fprintf(w, "  location %d: %v\n", first+pagedb.Location(i), r)
	}
}

func printTree(w io.Writer, nodes []pagedb.NodeInfo) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "empty tree")
		return
	}
	for _, n := range nodes {
		fmt.Fprintf(w, "%snode %d (parent %d) keys %v locations %v",
			strings.Repeat("  ", n.Depth), n.ID, n.Parent, n.Keys, n.Locations)
		if n.Children != nil {
			fmt.Fprintf(w, " children %v", n.Children)
		}
		fmt.Fprintln(w)
	}
}
