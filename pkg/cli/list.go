package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "list",
		Usage: "List the memory stream in creation order",
		Flags: globalFlags(&cfg),
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

			memories, err := memory.New(repo).List(ctx, owner)
			if err != nil {
				return goerr.Wrap(err, "failed to list memories")
			}

			printMemories(c.Root().Writer, memories)
			return nil
		},
	}
}
