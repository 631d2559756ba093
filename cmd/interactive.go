package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bisegni/docsql/pkg/engine"
	"github.com/bisegni/docsql/pkg/logger"
	"github.com/chzyer/readline"
)

const interactiveHelp = `Enter a command document, a SELECT statement or one of:
  :use <collection>    set the default collection
  :update {...}        run an update or administrative command
  :explain {...}       print the command and plan without running it
  :help                show this help
  exit, quit           leave`

func RunInteractive(ctx context.Context) error {
	fmt.Println("Interactive mode enabled. Type 'exit' or 'quit' to leave, ':help' for commands.")

	return withConn(ctx, func(conn *engine.Conn) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          prompt(conn),
			HistoryFile:     "", // In-memory history for this session
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return err
		}
		defer rl.Close()

		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}

			quit, err := evalLine(ctx, os.Stdout, conn, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			if quit {
				break
			}
			rl.SetPrompt(prompt(conn))
		}
		return nil
	})
}

func prompt(conn *engine.Conn) string {
	if c := conn.Collection(); c != "" {
		return c + "> "
	}
	return "> "
}

// evalLine runs one REPL input. It reports whether the session should end.
func evalLine(ctx context.Context, w io.Writer, conn *engine.Conn, line string) (bool, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false, nil
	}
	if strings.EqualFold(trimmed, "exit") || strings.EqualFold(trimmed, "quit") {
		return true, nil
	}

	if !strings.HasPrefix(trimmed, ":") {
		c, err := classify(trimmed)
		if err != nil {
			return false, err
		}
		return false, runCommand(ctx, w, conn, c)
	}

	directive, arg, _ := strings.Cut(trimmed[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(directive) {
	case "use":
		if arg == "" {
			return false, fmt.Errorf(":use needs a collection name")
		}
		conn.SetCollection(arg)
		logger.Debug("default collection changed", "collection", arg)
		return false, nil
	case "update":
		return false, runUpdate(ctx, w, conn, arg)
	case "explain":
		c, err := classify(arg)
		if err != nil {
			return false, err
		}
		return false, explain(w, c)
	case "help":
		_, err := fmt.Fprintln(w, interactiveHelp)
		return false, err
	default:
		return false, fmt.Errorf("unknown directive :%s, try :help", directive)
	}
}
