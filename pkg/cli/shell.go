package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func shellCommand() *cli.Command {
	var (
		cfg         config
		userID      string
		historyFile string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Initial user ID (change with /user)",
			Sources:     cli.EnvVars("TWINMIND_USER"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "File to keep input history in",
			Sources:     cli.EnvVars("TWINMIND_HISTORY_FILE"),
			Destination: &historyFile,
		},
	}
	flags = append(flags, relayFlags(&cfg)...)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive session to store and search memories",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			r, err := cfg.newRelay(ctx)
			if err != nil {
				return err
			}

			uc := memory.New(r,
				memory.WithOutput(c.Root().Writer),
				memory.WithProgress(newProgress(c.Root().ErrWriter, true)),
			)
			shell := uc.NewShell(userID)

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          shell.Prompt(),
				HistoryFile:     historyFile,
				InterruptPrompt: "^C",
				EOFPrompt:       "/exit",
				Stdout:          c.Root().Writer,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start readline")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "TwinMind shell. Type /help for commands.\n")

			for {
				rl.SetPrompt(shell.Prompt())
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

				if !shell.Handle(ctx, line) {
					break
				}
			}

			return nil
		},
	}
}
