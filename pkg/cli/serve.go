package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/policy"
	"github.com/m-mizutani/twinmind/pkg/server"
	"github.com/m-mizutani/twinmind/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg       config
		addr      string
		policyDir string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Usage:       "Listen address",
			Value:       ":3001",
			Sources:     cli.EnvVars("TWINMIND_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies gating requests (data.relay.allow)",
			Sources:     cli.EnvVars("TWINMIND_POLICY_DIR"),
			Destination: &policyDir,
		},
	}
	flags = append(flags, relayFlags(&cfg)...)
	flags = append(flags, logFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the relay server that injects the credential for browser callers",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			logger := logging.From(ctx)

			r, err := cfg.newRelay(ctx)
			if err != nil {
				return err
			}

			gate, err := policy.Load(ctx, policyDir)
			if err != nil {
				return err
			}
			if gate != nil {
				logger.Info("policy gate enabled", "dir", policyDir)
			}

			srv, err := server.New(r, server.WithGate(gate), server.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Listen(addr)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down relay server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to stop relay server")
			}
			return nil
		},
	}
}
