package account

import (
	"log/slog"

	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/pkg/metrics"
)

// Built-in provider names matched before the registry's custom attributes
const (
	GoogleProvider = "google"
	GitHubProvider = "github"
)

// Selector resolves the account strategy for a provider name. The table is
// built once from the registry and never changes.
type Selector struct {
	strategies map[string]Strategy
	log        *slog.Logger
}

// NewSelector builds the strategy table for every configured provider
func NewSelector(registry *provider.Registry) *Selector {
	s := &Selector{
		strategies: make(map[string]Strategy),
		log:        slog.Default().With(slog.String("component", "strategy_selector")),
	}
	for _, p := range registry.List() {
		s.strategies[p.Code] = resolve(p.Code, p.CustomAttributes)
	}
	return s
}

func resolve(code string, custom provider.AttributeMapping) Strategy {
	switch code {
	case GoogleProvider:
		return GoogleStrategy(code)
	case GitHubProvider:
		return GitHubStrategy(code)
	default:
		return GenericStrategy(code, custom)
	}
}

// Select returns the strategy for a provider name, case-insensitively. It
// never fails: a name that is neither built in nor configured gets the
// generic strategy with the default mapping.
func (s *Selector) Select(providerName string) Strategy {
	code := provider.Canonical(providerName)
	if st, ok := s.strategies[code]; ok {
		return st
	}
	if code == GoogleProvider || code == GitHubProvider {
		return resolve(code, provider.AttributeMapping{})
	}

	s.log.Warn("no configuration for provider, using default attribute mapping",
		slog.String("provider", code))
	metrics.StrategyFallbacks.WithLabelValues(code).Inc()
	return GenericStrategy(code, provider.AttributeMapping{})
}

// Known reports whether providerName is built in or configured
func (s *Selector) Known(providerName string) bool {
	code := provider.Canonical(providerName)
	_, ok := s.strategies[code]
	return ok || code == GoogleProvider || code == GitHubProvider
}
