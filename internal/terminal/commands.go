package terminal

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandName identifies a slash command.
type CommandName string

const (
	CmdExit    CommandName = "exit"
	CmdHelp    CommandName = "help"
	CmdClear   CommandName = "clear"
	CmdNewTab  CommandName = "new"
	CmdTab     CommandName = "tab"
	CmdTabs    CommandName = "tabs"
	CmdTuner   CommandName = "t"
	CmdHistory CommandName = "history"
	CmdCalls   CommandName = "calls"
)

// Command is a parsed slash command. Arg holds the number given to /tab and
// /t.
type Command struct {
	Name CommandName
	Arg  int
}

var commandAliases = map[string]CommandName{
	"exit":    CmdExit,
	"quit":    CmdExit,
	"help":    CmdHelp,
	"clear":   CmdClear,
	"new":     CmdNewTab,
	"tab":     CmdTab,
	"tabs":    CmdTabs,
	"t":       CmdTuner,
	"history": CmdHistory,
	"calls":   CmdCalls,
}

// ParseCommand parses line as a slash command. ok is false when line is not
// a command and should be sent as a prompt.
func ParseCommand(line string) (cmd Command, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{}, false, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return Command{}, true, fmt.Errorf("empty command")
	}

	name, known := commandAliases[strings.ToLower(fields[0])]
	if !known {
		return Command{}, true, fmt.Errorf("unknown command /%s", fields[0])
	}
	cmd.Name = name

	switch name {
	case CmdTab, CmdTuner:
		if len(fields) != 2 {
			return Command{}, true, fmt.Errorf("usage: /%s N", name)
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, true, fmt.Errorf("usage: /%s N: %w", name, err)
		}
		cmd.Arg = n
	default:
		if len(fields) != 1 {
			return Command{}, true, fmt.Errorf("/%s takes no arguments", name)
		}
	}
	return cmd, true, nil
}
