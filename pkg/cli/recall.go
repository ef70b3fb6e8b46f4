package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func recallCommand() *cli.Command {
	var (
		cfg      config
		asJSON   bool
		asPrompt bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the ranking as JSON",
			Destination: &asJSON,
		},
		&cli.BoolFlag{
			Name:        "prompt",
			Usage:       "Print memories formatted for a downstream prompt",
			Destination: &asPrompt,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, scoringFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Recall the memories most relevant to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)

			owner, err := cfg.ownerID()
			if err != nil {
				return err
			}

			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return goerr.New("query is required")
			}

			uc, cleanup, err := cfg.newUseCase(ctx, c)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := uc.Recall(ctx, owner, query, uc.TopK())
			if err != nil {
				return goerr.Wrap(err, "failed to recall")
			}

			switch {
			case asJSON:
				data, err := json.MarshalIndent(out.Memories, "", "  ")
				if err != nil {
					return goerr.Wrap(err, "failed to marshal memories")
				}
				fmt.Fprintf(c.Root().Writer, "%s\n", string(data))
			case asPrompt:
				fmt.Fprintf(c.Root().Writer, "%s\n", memory.FormatMemories(out.Memories))
			default:
				printRecalled(c.Root().Writer, out)
			}
			return nil
		},
	}
}
