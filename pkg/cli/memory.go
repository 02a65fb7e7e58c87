package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/model"
	"github.com/m-mizutani/twinmind/pkg/usecase/memory"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
)

func storeCommand() *cli.Command {
	return memoryCommand(model.OperationStore, "store", "Store text as a memory of the user")
}

func searchCommand() *cli.Command {
	return memoryCommand(model.OperationSearch, "search", "Search memories of the user")
}

func memoryCommand(op model.Operation, name, usage string) *cli.Command {
	var (
		cfg       config
		userID    string
		noSpinner bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID",
			Sources:     cli.EnvVars("TWINMIND_USER"),
			Destination: &userID,
		},
		&cli.BoolFlag{
			Name:        "no-spinner",
			Usage:       "Do not show the progress indicator",
			Destination: &noSpinner,
		},
	}
	flags = append(flags, relayFlags(&cfg)...)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "[text...] (read from stdin when omitted)",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}

			text, err := inputText(c)
			if err != nil {
				return err
			}

			r, err := cfg.newRelay(ctx)
			if err != nil {
				return err
			}

			uc := memory.New(r,
				memory.WithOutput(c.Root().Writer),
				memory.WithProgress(newProgress(c.Root().ErrWriter, !noSpinner)),
			)

			switch op {
			case model.OperationStore:
				return uc.Store(ctx, userID, text)
			default:
				return uc.Search(ctx, userID, text)
			}
		},
	}
}

// inputText joins the arguments, or reads all of stdin when there are none
func inputText(c *cli.Command) (string, error) {
	if c.Args().Len() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}

	reader := c.Root().Reader
	if reader == nil {
		reader = os.Stdin
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read text from stdin")
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// newProgress returns a spinner when w is a terminal
func newProgress(w io.Writer, enabled bool) memory.Progress {
	f, ok := w.(*os.File)
	if !enabled || !ok || !isatty.IsTerminal(f.Fd()) {
		return nil
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " Processing..."
	return s
}
