package secrets

import (
	"os"
	"strings"
)

// providerEnvVars maps a model provider name to the environment variable
// holding its API key.
var providerEnvVars = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"google":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// ProviderLoader returns a Loader that reads the API keys for the given
// providers from the environment. Unknown providers fall back to
// <PROVIDER>_API_KEY. Missing variables are silently omitted.
func ProviderLoader(providers ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(providers))
		for _, p := range providers {
			envVar, ok := providerEnvVars[p]
			if !ok {
				envVar = strings.ToUpper(p) + "_API_KEY"
			}
			if v := os.Getenv(envVar); v != "" {
				vals[p] = v
			}
		}
		return vals, nil
	}
}
