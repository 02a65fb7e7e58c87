package relay

import (
	"log/slog"
	"maps"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/model"
)

// Config selects the memory service a Relay talks to. It is copied into the
// Relay on construction and never changes afterwards.
type Config struct {
	Variant      model.Variant
	BaseURL      string
	Credential   string
	ExtraHeaders map[string]string
	Timeout      time.Duration
}

// Validate checks that the config can build requests
func (x Config) Validate() error {
	if err := x.Variant.Validate(); err != nil {
		return err
	}
	if x.BaseURL == "" {
		return goerr.New("base URL is required")
	}

	u, err := url.Parse(x.BaseURL)
	if err != nil {
		return goerr.Wrap(err, "invalid base URL", goerr.V("base_url", x.BaseURL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return goerr.New("base URL must be http or https", goerr.V("base_url", x.BaseURL))
	}
	if u.RawQuery != "" {
		return goerr.New("base URL must not have a query", goerr.V("base_url", x.BaseURL))
	}
	if u.Fragment != "" {
		return goerr.New("base URL must not have a fragment", goerr.V("base_url", x.BaseURL))
	}

	for name := range x.ExtraHeaders {
		if name == "" {
			return goerr.New("extra header name is empty")
		}
	}
	if x.Timeout < 0 {
		return goerr.New("timeout must not be negative", goerr.V("timeout", x.Timeout))
	}

	return nil
}

func (x Config) clone() Config {
	c := x
	c.ExtraHeaders = maps.Clone(x.ExtraHeaders)
	return c
}

// LogValue implements slog.LogValuer and keeps secrets out of logs
func (x Config) LogValue() slog.Value {
	names := make([]string, 0, len(x.ExtraHeaders))
	for name := range x.ExtraHeaders {
		names = append(names, name)
	}

	return slog.GroupValue(
		slog.String("variant", string(x.Variant)),
		slog.String("base_url", x.BaseURL),
		slog.Bool("credential", x.Credential != ""),
		slog.Any("extra_headers", names),
		slog.Duration("timeout", x.Timeout),
	)
}
