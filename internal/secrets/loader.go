package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a credential such as an API key or database DSN comes from.
type Source struct {
	// Name is used in error messages.
	Name string
	// Value is an inline value from configuration or flags.
	Value string
	// File points to a file holding the value. It takes precedence over Env and Value.
	File string
	// Env names an environment variable consulted when File is empty. It takes precedence over Value.
	Env string
}

// Load resolves the secret in the order file, environment, inline value. The result is trimmed.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if secret := strings.TrimSpace(os.Getenv(env)); secret != "" {
			return secret, nil
		}
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		return "", fmt.Errorf("%s is not configured", name)
	}

	return secret, nil
}
