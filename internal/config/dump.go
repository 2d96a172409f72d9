package config

import (
	"time"

	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/saudedash/internal/errs"
)

const redacted = "********"

// secretKeys are masked by Dump.
var secretKeys = []string{
	"database.url",
	"identity.key",
	"storage.access_key",
	"storage.secret_key",
}

// Dump renders c as YAML with secrets masked and durations written the way
// Load accepts them.
func Dump(c *Config) ([]byte, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(c, "koanf"), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "failed to flatten configuration", err)
	}
	for _, key := range secretKeys {
		if k.String(key) != "" {
			if err := k.Set(key, redacted); err != nil {
				return nil, errs.Wrap(errs.ErrKindConfig, "failed to mask "+key, err)
			}
		}
	}

	out, err := yaml.Marshal(humanize(k.Raw()))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "failed to render configuration", err)
	}
	return out, nil
}

func humanize(m map[string]any) map[string]any {
	for key, v := range m {
		switch t := v.(type) {
		case map[string]any:
			m[key] = humanize(t)
		case time.Duration:
			m[key] = t.String()
		}
	}
	return m
}
