package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var (
		cfg      config
		memoryID model.MemoryID
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "memory-id",
			Aliases:     []string{"id"},
			Usage:       "Memory ID to show",
			Sources:     cli.EnvVars("JUDITH_MEMORY_ID"),
			Destination: (*string)(&memoryID),
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show a memory without marking it as accessed",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx, c.Root().ErrWriter)

			owner, err := cfg.ownerID()
			if err != nil {
				return err
			}

			repo, cleanup, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			m, err := memory.New(repo).Get(ctx, owner, memoryID)
			if err != nil {
				return goerr.Wrap(err, "failed to show memory")
			}

			data, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to marshal memory")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", string(data))
			return nil
		},
	}
}
