package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

const shellHelp = `Type a message to recall related memories and store it.
  /recall <query>    recall without storing
  /reflect <text>    store an agent reflection with the memories it triggers
  /agent <text>      store an agent message
  /list              list all memories
  exit               quit`

func shellCommand() *cli.Command {
	var (
		cfg         config
		historyFile string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "File to keep the shell input history in",
			Sources:     cli.EnvVars("JUDITH_HISTORY_FILE"),
			Destination: &historyFile,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, scoringFlags(&cfg)...)

	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive session that recalls and stores each message",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)

			owner, err := cfg.ownerID()
			if err != nil {
				return err
			}

			uc, cleanup, err := cfg.newUseCase(ctx, c)
			if err != nil {
				return err
			}
			defer cleanup()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          c.Root().Writer,
				Stderr:          errWriter(c.Root().ErrWriter),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			sh := &shell{uc: uc, owner: owner, w: c.Root().Writer, errW: c.Root().ErrWriter}
			fmt.Fprintf(c.Root().Writer, "Memory shell for %s. Type 'help' for commands.\n", owner)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "exit" || line == "quit" {
					break
				}
				if line == "" {
					continue
				}

				if err := sh.handle(ctx, line); err != nil {
					fmt.Fprintf(c.Root().Writer, "error: %v\n", err)
				}
			}

			return nil
		},
	}
}

type shell struct {
	uc    *memory.UseCase
	owner model.OwnerID
	w     io.Writer
	errW  io.Writer
}

func (s *shell) handle(ctx context.Context, line string) error {
	if line == "help" {
		line = "/help"
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Fprintln(s.w, shellHelp)
		return nil

	case "/list":
		memories, err := s.uc.List(ctx, s.owner)
		if err != nil {
			return err
		}
		printMemories(s.w, memories)
		return nil

	case "/recall":
		return s.recall(ctx, arg)

	case "/reflect":
		spin := startSpinner(s.errW, "reflecting...")
		mem, recalled, err := s.uc.RecordReflection(ctx, s.owner, arg, 0)
		spin.Stop()
		if err != nil {
			return err
		}
		printRecalled(s.w, recalled)
		fmt.Fprintf(s.w, "reflection stored: %s (significance: %s)\n", mem.ID, significanceLabel(mem.Significance))
		return nil

	case "/agent":
		return s.record(ctx, model.MemoryKindAgentMessage, arg)

	default:
		if strings.HasPrefix(cmd, "/") {
			return goerr.New("unknown command", goerr.V("command", cmd))
		}
		// recall before storing so the message does not recall itself
		if err := s.recall(ctx, line); err != nil {
			return err
		}
		return s.record(ctx, model.MemoryKindUserMessage, line)
	}
}

func (s *shell) recall(ctx context.Context, query string) error {
	spin := startSpinner(s.errW, "recalling...")
	out, err := s.uc.Recall(ctx, s.owner, query, s.uc.TopK())
	spin.Stop()
	if err != nil {
		return err
	}
	printRecalled(s.w, out)
	return nil
}

func (s *shell) record(ctx context.Context, kind model.MemoryKind, text string) error {
	spin := startSpinner(s.errW, "remembering...")
	mem, err := s.uc.Record(ctx, s.owner, kind, text)
	spin.Stop()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.w, "stored: %s (significance: %s)\n", mem.ID, significanceLabel(mem.Significance))
	return nil
}
