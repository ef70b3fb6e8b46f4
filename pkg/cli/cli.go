package cli

import (
	"context"
	"fmt"

	"github.com/phrazzld/judith/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "judith",
		Usage: "Long-term memory for conversational agents",
		Commands: []*cli.Command{
			rememberCommand(),
			recallCommand(),
			listCommand(),
			showCommand(),
			exportCommand(),
			importCommand(),
			shellCommand(),
			serveCommand(),
		},
	}
}

func Run(ctx context.Context, argv []string) *Error {
	return run(ctx, newApp(), argv)
}

func run(ctx context.Context, app *cli.Command, argv []string) *Error {
	if err := app.Run(ctx, argv); err != nil {
		logging.Default().Debug("command failed", "error", err)
		fmt.Fprintf(errWriter(app.ErrWriter), "Error: %s\n", err.Error())
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
