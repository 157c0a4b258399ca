package workload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pagedb/internal/base"
)

var ErrInvalidCommand = errors.New("invalid command")

// Op names a replayable operation.
type Op string

const (
	OpInsert Op = "insert"
	OpSearch Op = "search"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpDump   Op = "dump"
	OpStats  Op = "stats"
	OpPrint  Op = "print"
)

// Command is one parsed line of a command file. Record is set for insert and
// update, Key for search, update and delete, Block for print.
type Command struct {
	Op     Op
	Key    base.Key
	Record base.Record
	Block  int32
}

func (c Command) String() string {
	switch c.Op {
	case OpInsert:
		return fmt.Sprintf("insert %d %d %d %d", c.Record.First, c.Record.Second, c.Record.Third, c.Record.Key)
	case OpUpdate:
		return fmt.Sprintf("update %d %d %d %d", c.Key, c.Record.First, c.Record.Second, c.Record.Third)
	case OpSearch, OpDelete:
		return fmt.Sprintf("%s %d", c.Op, c.Key)
	case OpPrint:
		return fmt.Sprintf("print %d", c.Block)
	default:
		return string(c.Op)
	}
}

// ParseCommand parses one line:
//
//	insert F S T KEY
//	update KEY F S T
//	search KEY
//	delete KEY
//	print BLOCK
//	dump
//	stats
//
// Blank lines and lines starting with '#' yield ok == false and no error.
func ParseCommand(line string) (cmd Command, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return Command{}, false, nil
	}

	op := Op(strings.ToLower(fields[0]))
	args, err := parseInts(fields[1:])
	if err != nil {
		return Command{}, false, fmt.Errorf("%w: %q: %w", ErrInvalidCommand, line, err)
	}

	want := map[Op]int{OpInsert: 4, OpUpdate: 4, OpSearch: 1, OpDelete: 1, OpPrint: 1, OpDump: 0, OpStats: 0}
	n, known := want[op]
	if !known {
		return Command{}, false, fmt.Errorf("%w: unknown operation %q", ErrInvalidCommand, fields[0])
	}
	if len(args) != n {
		return Command{}, false, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidCommand, op, n, len(args))
	}

	cmd.Op = op
	switch op {
	case OpInsert:
		cmd.Record = base.Record{First: args[0], Second: args[1], Third: args[2], Key: base.Key(args[3])}
		cmd.Key = cmd.Record.Key
	case OpUpdate:
		cmd.Key = base.Key(args[0])
		cmd.Record = base.Record{First: args[1], Second: args[2], Third: args[3], Key: cmd.Key}
	case OpSearch, OpDelete:
		cmd.Key = base.Key(args[0])
	case OpPrint:
		cmd.Block = args[0]
	}
	return cmd, true, nil
}

func parseInts(fields []string) ([]int32, error) {
	out := make([]int32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, err
		}
		out[i] = int32(v)
	}
	return out, nil
}
