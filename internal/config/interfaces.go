package config

import "context"

// SecretProvider resolves secret paths to plaintext values. SSMProvider
// backs deployed environments; EnvVarProvider backs local runs and tests.
type SecretProvider interface {
	// GetParametersBatch returns the values it could resolve keyed by path.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
