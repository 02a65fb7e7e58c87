package cli

import (
	"context"

	"github.com/m-mizutani/twinmind/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	flags := relayFlags(&cfg)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve store_memory and search_memory as MCP tools on stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries the protocol, so logs go to stderr only
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			r, err := cfg.newRelay(ctx)
			if err != nil {
				return err
			}

			return mcp.Run(ctx, r, version)
		},
	}
}
