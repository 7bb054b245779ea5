package linking

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mchub-dev/mchub/domain"
	"github.com/mchub-dev/mchub/internal/audit"
	"github.com/mchub-dev/mchub/internal/metrics"
)

// SessionAuthenticator validates the caller's session credential and yields
// the local account id. Implementations fail fast on an empty credential
// before any network call.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, credential string) (accountID string, err error)
}

// LinkResult is the persisted outcome of a successful link.
type LinkResult struct {
	Namespace   domain.Namespace
	ExternalID  string
	DisplayName string
	AvatarURL   string
}

// Service orchestrates one link request: authenticate, exchange, resolve,
// guard uniqueness, persist. Each request is one stateless, strictly
// sequential pass; a failed attempt is restarted by the caller with a fresh
// authorization artifact.
type Service struct {
	authn     SessionAuthenticator
	accounts  domain.AccountRepository
	providers map[string]Provider
}

// NewService constructs a Service over the given providers. Dependencies
// are injected so tests can substitute mocks without process-wide state.
func NewService(authn SessionAuthenticator, accounts domain.AccountRepository, providers ...Provider) *Service {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		authn:     authn,
		accounts:  accounts,
		providers: byName,
	}
}

// ProviderNames lists the registered provider route identifiers.
func (s *Service) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// Link runs the full pipeline. The credential check runs before anything
// else so a missing session costs no downstream calls, and the artifact
// check runs before any provider call.
func (s *Service) Link(ctx context.Context, providerName, credential, artifact string) (*LinkResult, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return nil, ErrInvalidInput("unknown provider: " + providerName)
	}
	metrics.LinkAttemptsTotal.WithLabelValues(providerName).Inc()

	accountID, err := s.authn.Authenticate(ctx, credential)
	if err != nil {
		return nil, s.fail(providerName, err)
	}
	if artifact == "" {
		return nil, s.fail(providerName, ErrInvalidInput("authorization_artifact is required"))
	}

	profile, err := provider.Exchange(ctx, artifact)
	if err != nil {
		return nil, s.fail(providerName, err)
	}
	if profile == nil || profile.ExternalID == "" || profile.DisplayName == "" {
		return nil, s.fail(providerName, ErrProfileUnavailable("provider returned incomplete profile"))
	}

	ns := provider.Namespace()
	if err := s.guardUniqueness(ctx, ns, profile.ExternalID, accountID); err != nil {
		audit.Log("link", accountID, providerName, profile.ExternalID, false, err)
		return nil, s.fail(providerName, err)
	}

	updated, err := s.accounts.UpdateBinding(ctx, accountID, domain.Binding{
		Namespace:   ns,
		ExternalID:  profile.ExternalID,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
	})
	if err != nil {
		// A concurrent bind for the same external id can slip past the
		// guard; the store's unique index is the authority and reports
		// it here.
		audit.Log("link", accountID, providerName, profile.ExternalID, false, err)
		if errors.Is(err, domain.ErrBindingConflict) {
			return nil, s.fail(providerName, s.conflictError(ctx, ns, profile.ExternalID))
		}
		return nil, s.fail(providerName, ErrInternal(err))
	}

	persisted := updated.BindingFor(ns)
	if persisted == nil {
		return nil, s.fail(providerName, ErrInternal(errors.New("binding missing after persist")))
	}

	metrics.LinkSuccessTotal.WithLabelValues(providerName).Inc()
	audit.Log("link", accountID, providerName, persisted.ExternalID, true, nil)
	log.Info().
		Str("provider", providerName).
		Str("account_id", accountID).
		Str("external_id", persisted.ExternalID).
		Str("display_name", persisted.DisplayName).
		Msg("external account linked")

	return &LinkResult{
		Namespace:   persisted.Namespace,
		ExternalID:  persisted.ExternalID,
		DisplayName: persisted.DisplayName,
		AvatarURL:   persisted.AvatarURL,
	}, nil
}

// guardUniqueness rejects the bind when the external id is already held by
// a different account. A binding already on the caller's own account is the
// idempotent re-link case and passes.
func (s *Service) guardUniqueness(ctx context.Context, ns domain.Namespace, externalID, accountID string) error {
	owner, err := s.accounts.FindByExternalID(ctx, ns, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil
		}
		return ErrInternal(err)
	}
	if owner.ID == accountID {
		return nil
	}
	return ErrAlreadyLinked(owner.Username)
}

// conflictError builds the AlreadyLinked error for a lost persist race,
// surfacing the winning account's display name.
func (s *Service) conflictError(ctx context.Context, ns domain.Namespace, externalID string) *Error {
	owner, err := s.accounts.FindByExternalID(ctx, ns, externalID)
	if err != nil || owner == nil {
		return ErrAlreadyLinked("")
	}
	return ErrAlreadyLinked(owner.Username)
}

// Bindings returns the authenticated account's bindings in both namespaces.
func (s *Service) Bindings(ctx context.Context, credential string) (*domain.Account, error) {
	accountID, err := s.authn.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, ErrUnauthenticated("account no longer exists")
		}
		return nil, ErrInternal(err)
	}
	return account, nil
}

// Unlink removes the authenticated account's binding for the provider's
// namespace.
func (s *Service) Unlink(ctx context.Context, providerName, credential string) error {
	provider, ok := s.providers[providerName]
	if !ok {
		return ErrInvalidInput("unknown provider: " + providerName)
	}
	accountID, err := s.authn.Authenticate(ctx, credential)
	if err != nil {
		return err
	}
	if err := s.accounts.RemoveBinding(ctx, accountID, provider.Namespace()); err != nil {
		audit.Log("unlink", accountID, providerName, "", false, err)
		if errors.Is(err, domain.ErrBindingNotFound) {
			return &Error{Kind: KindBindingNotFound, Detail: "no " + providerName + " binding on this account"}
		}
		return ErrInternal(err)
	}
	audit.Log("unlink", accountID, providerName, "", true, nil)
	log.Info().Str("provider", providerName).Str("account_id", accountID).Msg("external account unlinked")
	return nil
}

func (s *Service) fail(providerName string, err error) error {
	kind := KindInternal
	if le, ok := AsError(err); ok {
		kind = le.Kind
	}
	metrics.LinkFailuresTotal.WithLabelValues(providerName, string(kind)).Inc()
	return err
}
