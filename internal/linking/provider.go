package linking

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/mchub-dev/mchub/domain"
)

// ExternalProfile is the resolved external account tuple. It is used once
// to populate the local account's binding and then discarded.
type ExternalProfile struct {
	ExternalID  string
	DisplayName string
	AvatarURL   string // optional, empty when the namespace has no avatar
}

// Provider converts a one-time authorization artifact into a resolved
// external profile. Implementations perform their exchange hops strictly
// in order, abort on the first non-success hop, and never retry a hop:
// a retried exchange would replay a consumed one-time code.
type Provider interface {
	// Name is the provider's route identifier ("xbox", "java").
	Name() string

	// Namespace is the identity namespace the provider resolves into.
	Namespace() domain.Namespace

	// Exchange runs the provider's exchange chain and profile fetch.
	// Failures are always a linking *Error.
	Exchange(ctx context.Context, artifact string) (*ExternalProfile, error)
}

// classifyTransportErr maps an outbound call failure to the timeout or
// unavailable kind for the given hop.
func classifyTransportErr(hop int, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout(hop, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout(hop, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return ErrTimeout(hop, err)
	}
	return ErrUnavailable(hop, err)
}

// truncateToken shortens a credential to a safe diagnostic prefix.
func truncateToken(tok string) string {
	const keep = 8
	if len(tok) <= keep {
		return tok
	}
	return tok[:keep] + "..."
}
