package endpoint

import (
	"strings"

	clierr "github.com/ggonzalez94/chainctl/internal/errors"
	"github.com/ggonzalez94/chainctl/internal/registry"
)

// Pool is a named, priority-ordered list of endpoints for one chain family.
type Pool struct {
	Family    string
	Endpoints []string
}

// ResolvePool picks the built-in pool for family (or, when family is empty, the
// family guessed from userEndpoint) and puts userEndpoint at its head exactly once.
func ResolvePool(userEndpoint, family string) (Pool, error) {
	userEndpoint = strings.TrimSpace(userEndpoint)
	family = registry.NormalizeFamily(family)
	if family == "" {
		family = registry.FamilyForEndpoint(userEndpoint)
	}
	known, err := registry.FamilyEndpoints(family)
	if err != nil {
		return Pool{}, clierr.Wrap(clierr.CodeUsage, "resolve endpoint pool", err).At(clierr.StageConnect)
	}

	endpoints := make([]string, 0, len(known)+1)
	seen := make(map[string]struct{}, len(known)+1)
	add := func(v string) {
		key := normalizeURL(v)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		endpoints = append(endpoints, v)
	}
	add(userEndpoint)
	for _, v := range known {
		add(v)
	}
	if len(endpoints) == 0 {
		return Pool{}, clierr.NoEndpointConfigured(family)
	}
	return Pool{Family: family, Endpoints: endpoints}, nil
}

func normalizeURL(v string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(v)), "/")
}
