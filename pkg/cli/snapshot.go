package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func exportCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, storageFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export the memory stream to Cloud Storage as JSON Lines",
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

			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			key, n, err := memory.New(repo, memory.WithStorage(storage)).Export(ctx, owner)
			if err != nil {
				return goerr.Wrap(err, "failed to export memories")
			}

			fmt.Fprintf(c.Root().Writer, "Exported %d memories to gs://%s/%s\n", n, cfg.bucket, key)
			return nil
		},
	}
}

func importCommand() *cli.Command {
	var (
		cfg config
		key string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "key",
			Usage:       "Object key of the snapshot (memories/<owner>/<timestamp>.jsonl)",
			Sources:     cli.EnvVars("JUDITH_SNAPSHOT_KEY"),
			Destination: &key,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)

	return &cli.Command{
		Name:  "import",
		Usage: "Import a snapshot, skipping memories that already exist",
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

			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			result, err := memory.New(repo, memory.WithStorage(storage)).Import(ctx, owner, key)
			if err != nil {
				return goerr.Wrap(err, "failed to import memories")
			}

			fmt.Fprintf(c.Root().Writer, "Imported %d memories (%d already present)\n", result.Imported, result.Skipped)
			return nil
		},
	}
}
