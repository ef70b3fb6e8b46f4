package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/urfave/cli/v3"
)

func rememberCommand() *cli.Command {
	var (
		cfg  config
		kind string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "kind",
			Usage:       "Memory kind (userMessage, agentMessage, agentReflection)",
			Value:       string(model.MemoryKindUserMessage),
			Sources:     cli.EnvVars("JUDITH_KIND"),
			Destination: &kind,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, scoringFlags(&cfg)...)

	return &cli.Command{
		Name:      "remember",
		Usage:     "Store a message in the memory stream",
		ArgsUsage: "<text> (reads stdin when omitted)",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)

			owner, err := cfg.ownerID()
			if err != nil {
				return err
			}

			memoryKind := model.MemoryKind(kind)
			if err := memoryKind.Validate(); err != nil {
				return err
			}

			text := strings.Join(c.Args().Slice(), " ")
			if text == "" {
				var r io.Reader = os.Stdin
				if c.Root().Reader != nil {
					r = c.Root().Reader
				}
				data, err := io.ReadAll(r)
				if err != nil {
					return goerr.Wrap(err, "failed to read text from stdin")
				}
				text = strings.TrimSpace(string(data))
			}

			uc, cleanup, err := cfg.newUseCase(ctx, c)
			if err != nil {
				return err
			}
			defer cleanup()

			spin := startSpinner(c.Root().ErrWriter, "remembering...")
			var mem *model.Memory
			if memoryKind == model.MemoryKindAgentReflection {
				mem, _, err = uc.RecordReflection(ctx, owner, text, 0)
			} else {
				mem, err = uc.Record(ctx, owner, memoryKind, text)
			}
			spin.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to remember")
			}

			fmt.Fprintf(c.Root().Writer, "Memory created: %s (significance: %s)\n", mem.ID, significanceLabel(mem.Significance))
			if mem.TriggeredMemories != "" {
				fmt.Fprintf(c.Root().Writer, "Triggered memories:\n%s\n", mem.TriggeredMemories)
			}
			return nil
		},
	}
}
