package relay

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/model"
	"gopkg.in/yaml.v3"
)

// LookupEnv resolves environment variables; os.LookupEnv in production
type LookupEnv func(key string) (string, bool)

// Profiles is the deployment profile file. Secrets are referenced by
// environment variable name and are never stored in the file itself.
type Profiles struct {
	Default  string    `yaml:"default"`
	Profiles []Profile `yaml:"profiles"`
}

// Profile describes one memory service deployment
type Profile struct {
	Name          string        `yaml:"name"`
	Variant       string        `yaml:"variant"`
	BaseURL       string        `yaml:"base_url"`
	CredentialEnv string        `yaml:"credential_env"`
	Headers       []HeaderRef   `yaml:"headers"`
	Timeout       time.Duration `yaml:"timeout"`
}

// HeaderRef is an extra header. Value is for non-secret values, ValueEnv
// names the variable holding a secret one.
type HeaderRef struct {
	Name     string `yaml:"name"`
	Value    string `yaml:"value"`
	ValueEnv string `yaml:"value_env"`
}

// LoadProfiles reads a profile file
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read profile file", goerr.V("path", path))
	}

	var profiles Profiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, goerr.Wrap(err, "failed to parse profile file", goerr.V("path", path))
	}

	seen := make(map[string]bool, len(profiles.Profiles))
	for _, p := range profiles.Profiles {
		if p.Name == "" {
			return nil, goerr.New("profile name is empty", goerr.V("path", path))
		}
		if seen[p.Name] {
			return nil, goerr.New("duplicated profile", goerr.V("path", path), goerr.V("name", p.Name))
		}
		seen[p.Name] = true
	}

	return &profiles, nil
}

// Resolve builds a Config from the named profile, or from the default
// profile when name is empty. Secrets are read through lookup.
func (x *Profiles) Resolve(name string, lookup LookupEnv) (Config, error) {
	if name == "" {
		name = x.Default
	}
	if name == "" && len(x.Profiles) == 1 {
		name = x.Profiles[0].Name
	}
	if name == "" {
		return Config{}, goerr.New("no profile selected and no default profile")
	}

	var profile *Profile
	for i := range x.Profiles {
		if x.Profiles[i].Name == name {
			profile = &x.Profiles[i]
			break
		}
	}
	if profile == nil {
		return Config{}, goerr.New("profile not found", goerr.V("name", name))
	}

	return profile.config(lookup)
}

func (x *Profile) config(lookup LookupEnv) (Config, error) {
	variant, err := model.ParseVariant(x.Variant)
	if err != nil {
		return Config{}, goerr.Wrap(err, "invalid profile variant", goerr.V("profile", x.Name))
	}

	cfg := Config{
		Variant: variant,
		BaseURL: x.BaseURL,
		Timeout: x.Timeout,
	}

	if x.CredentialEnv != "" {
		v, ok := lookup(x.CredentialEnv)
		if !ok || v == "" {
			return Config{}, goerr.New("credential environment variable is not set",
				goerr.V("profile", x.Name),
				goerr.V("env", x.CredentialEnv))
		}
		cfg.Credential = v
	}

	for _, h := range x.Headers {
		if h.Name == "" {
			return Config{}, goerr.New("header name is empty", goerr.V("profile", x.Name))
		}

		value := h.Value
		if h.ValueEnv != "" {
			v, ok := lookup(h.ValueEnv)
			if !ok {
				return Config{}, goerr.New("header environment variable is not set",
					goerr.V("profile", x.Name),
					goerr.V("header", h.Name),
					goerr.V("env", h.ValueEnv))
			}
			value = v
		}

		if cfg.ExtraHeaders == nil {
			cfg.ExtraHeaders = make(map[string]string)
		}
		cfg.ExtraHeaders[h.Name] = value
	}

	return cfg, nil
}
