package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/model"
	"github.com/m-mizutani/twinmind/pkg/relay"
	"github.com/m-mizutani/twinmind/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const defaultTimeout = 30 * time.Second

// config holds configuration values
type config struct {
	// Relay
	baseURL     string
	variant     string
	credential  string
	headers     []string
	timeout     time.Duration
	profileFile string
	profile     string

	// Logging
	logLevel  string
	logFormat string
}

// relayFlags returns flags selecting the memory service with destination config
func relayFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-url",
			Aliases:     []string{"b"},
			Usage:       "Root URL of the memory service",
			Sources:     cli.EnvVars("TWINMIND_BASE_URL"),
			Destination: &cfg.baseURL,
		},
		&cli.StringFlag{
			Name:        "variant",
			Usage:       "Memory service contract (simple, structured)",
			Sources:     cli.EnvVars("TWINMIND_VARIANT"),
			Destination: &cfg.variant,
		},
		&cli.StringFlag{
			Name:        "credential",
			Usage:       "Bearer token sent to the memory service",
			Sources:     cli.EnvVars("TWINMIND_CREDENTIAL"),
			Destination: &cfg.credential,
		},
		&cli.StringSliceFlag{
			Name:        "header",
			Aliases:     []string{"H"},
			Usage:       "Extra request header as Name=Value (repeatable)",
			Sources:     cli.EnvVars("TWINMIND_HEADERS"),
			Destination: &cfg.headers,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Timeout of a memory service call",
			Value:       defaultTimeout,
			Sources:     cli.EnvVars("TWINMIND_TIMEOUT"),
			Destination: &cfg.timeout,
		},
		&cli.StringFlag{
			Name:        "profile-file",
			Usage:       "YAML file with deployment profiles",
			Sources:     cli.EnvVars("TWINMIND_PROFILE_FILE"),
			Destination: &cfg.profileFile,
		},
		&cli.StringFlag{
			Name:        "profile",
			Aliases:     []string{"p"},
			Usage:       "Profile name in the profile file (default profile if empty)",
			Sources:     cli.EnvVars("TWINMIND_PROFILE"),
			Destination: &cfg.profile,
		},
	}
}

// logFlags returns flags for logging with destination config
func logFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "warn",
			Sources:     cli.EnvVars("TWINMIND_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("TWINMIND_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// setupLogger attaches a logger writing to w to ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) (context.Context, error) {
	logger, err := logging.NewWithFormat(cfg.logLevel, cfg.logFormat, w)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// relayConfig merges the selected profile with explicit flags. Flags win
// over profile values.
func (cfg *config) relayConfig(lookup relay.LookupEnv) (relay.Config, error) {
	var rc relay.Config

	if cfg.profileFile != "" {
		profiles, err := relay.LoadProfiles(cfg.profileFile)
		if err != nil {
			return relay.Config{}, err
		}
		rc, err = profiles.Resolve(cfg.profile, lookup)
		if err != nil {
			return relay.Config{}, err
		}
	} else if cfg.profile != "" {
		return relay.Config{}, goerr.New("profile requires profile-file", goerr.V("profile", cfg.profile))
	}

	if cfg.baseURL != "" {
		rc.BaseURL = cfg.baseURL
	}
	if cfg.variant != "" || rc.Variant == "" {
		variant, err := model.ParseVariant(cfg.variant)
		if err != nil {
			return relay.Config{}, err
		}
		rc.Variant = variant
	}
	if cfg.credential != "" {
		rc.Credential = cfg.credential
	}
	if rc.Timeout == 0 {
		rc.Timeout = cfg.timeout
	}

	for _, h := range cfg.headers {
		name, value, ok := strings.Cut(h, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return relay.Config{}, goerr.New("header must be Name=Value", goerr.V("header", h))
		}
		if rc.ExtraHeaders == nil {
			rc.ExtraHeaders = make(map[string]string)
		}
		rc.ExtraHeaders[name] = strings.TrimSpace(value)
	}

	if rc.BaseURL == "" {
		return relay.Config{}, goerr.New("base-url is required (flag, TWINMIND_BASE_URL or profile)")
	}

	return rc, nil
}

// newRelay creates a new Relay instance
func (cfg *config) newRelay(ctx context.Context) (*relay.Relay, error) {
	rc, err := cfg.relayConfig(os.LookupEnv)
	if err != nil {
		return nil, err
	}

	r, err := relay.New(rc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create relay")
	}

	logging.From(ctx).Debug("relay configured", "config", rc)
	return r, nil
}
