package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devilmonastery/ara/internal/auth"
	"github.com/devilmonastery/ara/internal/auth/account"
	"github.com/devilmonastery/ara/internal/auth/authority"
	"github.com/devilmonastery/ara/internal/auth/provider"
	"github.com/devilmonastery/ara/internal/pkg/logger"
	"github.com/devilmonastery/ara/internal/pkg/metrics"
)

// FetchRawUser is the provider adapter: it completes the SDK call for one
// login and returns the provider's payload.
type FetchRawUser func(ctx context.Context) (*account.RawUser, error)

// LoginService turns a provider payload into an authenticated principal
type LoginService struct {
	selector *account.Selector
	mapper   *authority.Mapper
	sessions *SessionService
	log      *slog.Logger
}

// NewLoginService creates a new login service
func NewLoginService(selector *account.Selector, mapper *authority.Mapper, sessions *SessionService) *LoginService {
	return &LoginService{
		selector: selector,
		mapper:   mapper,
		sessions: sessions,
		log:      slog.Default().With(slog.String("service", "login")),
	}
}

// Login fetches the raw user, normalizes it with the provider's strategy,
// maps its authorities and persists the session. Failures are not retried.
func (s *LoginService) Login(ctx context.Context, providerName string, fetch FetchRawUser) (*auth.Principal, error) {
	start := time.Now()
	name := provider.Canonical(providerName)
	log := logger.WithProvider(s.log, name)

	raw, err := fetch(ctx)
	if err != nil {
		metrics.RecordLogin(name, metrics.OutcomeFetchFailed, time.Since(start))
		log.Warn("failed to fetch user from provider", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrProviderExchange, err)
	}

	strategy := s.selector.Select(name)
	user, err := strategy.Normalize(raw.Attributes)
	if err != nil {
		metrics.RecordLogin(name, metrics.OutcomeMappingFailed, time.Since(start))
		log.Warn("failed to map provider user",
			slog.String("strategy", strategy.String()),
			slog.String("error", err.Error()))
		return nil, err
	}

	set := s.mapper.Map(name, raw.Authorities)

	stored, err := s.sessions.UpsertUserSession(ctx, user, set, name)
	if err != nil {
		metrics.RecordLogin(name, metrics.OutcomePersistenceFailed, time.Since(start))
		log.Error("failed to persist user session",
			slog.String("login", user.Login),
			slog.String("error", err.Error()))
		return nil, err
	}

	issuer := raw.Issuer
	if issuer == "" {
		issuer = name
	}

	principal := &auth.Principal{
		UserID:      stored.ID,
		User:        *user,
		Authorities: stored.Roles,
		Groups:      set.Groups,
		Issuer:      issuer,
		Claims:      raw.Attributes,
		IDToken:     raw.IDToken,
	}

	metrics.RecordLogin(name, metrics.OutcomeSuccess, time.Since(start))
	logger.WithDuration(log, time.Since(start)).Info("login succeeded",
		slog.String("login", user.Login),
		slog.Any("roles", principal.Authorities))
	return principal, nil
}
