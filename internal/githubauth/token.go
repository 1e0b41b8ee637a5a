package githubauth

import (
	"os"
	"strings"
)

// Environment variable names consulted for a GitHub token, in preference order.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitHubAPIToken = "GITHUB_API_TOKEN"
)

var tokenPreference = []string{
	EnvGitHubCLIToken,
	EnvGitHubToken,
	EnvGitHubAPIToken,
}

// Token is a resolved GitHub token together with the variable that supplied it.
type Token struct {
	Value  string
	Source string
}

// ResolveToken returns the first non-empty token from the provided overrides,
// falling back to the process environment.
func ResolveToken(overrides map[string]string) (Token, bool) {
	for _, key := range tokenPreference {
		if value, found := lookup(overrides, key); found {
			return Token{Value: value, Source: key}, true
		}
	}
	for _, key := range tokenPreference {
		if value, found := os.LookupEnv(key); found {
			value = strings.TrimSpace(value)
			if len(value) > 0 {
				return Token{Value: value, Source: key}, true
			}
		}
	}
	return Token{}, false
}

func lookup(overrides map[string]string, key string) (string, bool) {
	if overrides == nil {
		return "", false
	}
	value, exists := overrides[key]
	if !exists {
		return "", false
	}
	value = strings.TrimSpace(value)
	if len(value) == 0 {
		return "", false
	}
	return value, true
}
