package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	if err := rootCommand().Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "twinmind",
		Usage:   "Store and search memories through a remote memory service",
		Version: version,
		Commands: []*cli.Command{
			storeCommand(),
			searchCommand(),
			shellCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}
}
