package linking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mchub-dev/mchub/domain"
)

// DefaultJavaClaimEndpoint is the Minecraft-services claim endpoint that
// exchanges an authorization artifact directly for the Java profile.
const DefaultJavaClaimEndpoint = "https://api.minecraftservices.com/authentication/claim"

// JavaConfig configures the single-hop claim exchange for Java Edition
// profiles.
type JavaConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	ClaimEndpoint string // defaults to DefaultJavaClaimEndpoint
	HopTimeout    time.Duration
}

// JavaProvider resolves a Java Edition profile with a single claim-style
// exchange: the artifact plus the pre-shared application credential go to
// the claim endpoint, whose response carries the profile id and name
// directly. The namespace has no avatar.
type JavaProvider struct {
	cfg    JavaConfig
	client *http.Client
}

func NewJavaProvider(cfg JavaConfig) *JavaProvider {
	if cfg.ClaimEndpoint == "" {
		cfg.ClaimEndpoint = DefaultJavaClaimEndpoint
	}
	if cfg.HopTimeout <= 0 {
		cfg.HopTimeout = defaultHopTimeout
	}
	return &JavaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HopTimeout},
	}
}

func (p *JavaProvider) Name() string { return "java" }

func (p *JavaProvider) Namespace() domain.Namespace { return domain.NamespaceJava }

type javaClaimResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Error            string `json:"error"`
	ErrorDescription string `json:"errorMessage"`
}

// Exchange performs the single claim call. The call is never retried.
func (p *JavaProvider) Exchange(ctx context.Context, artifact string) (*ExternalProfile, error) {
	payload, err := json.Marshal(map[string]string{
		"authorization_code": artifact,
		"client_id":          p.cfg.ClientID,
		"client_secret":      p.cfg.ClientSecret,
		"redirect_uri":       p.cfg.RedirectURI,
	})
	if err != nil {
		return nil, ErrInternal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.ClaimEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, ErrInternal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(1, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, classifyTransportErr(1, err)
	}

	var claim javaClaimResponse
	if unmarshalErr := json.Unmarshal(raw, &claim); unmarshalErr != nil && httpResp.StatusCode == http.StatusOK {
		return nil, ErrProfileUnavailable("malformed claim response")
	}

	switch {
	case httpResp.StatusCode == http.StatusOK:
		// fall through to claim validation below
	case httpResp.StatusCode >= 500:
		return nil, ErrUnavailable(1, fmt.Errorf("claim endpoint returned %d", httpResp.StatusCode))
	case httpResp.StatusCode == http.StatusBadRequest || httpResp.StatusCode == http.StatusUnauthorized:
		return nil, classifyClaimRejection(claim)
	default:
		return nil, ErrRejected(1, ReasonUnknown, fmt.Sprintf("status %d", httpResp.StatusCode))
	}

	if claim.ID == "" || claim.Name == "" {
		return nil, ErrProfileUnavailable("claim response missing profile id or name")
	}

	return &ExternalProfile{
		ExternalID:  claim.ID,
		DisplayName: claim.Name,
	}, nil
}

func classifyClaimRejection(claim javaClaimResponse) *Error {
	desc := strings.ToLower(claim.ErrorDescription)
	switch {
	case strings.Contains(desc, "redirect"):
		return ErrRejected(1, ReasonRedirectMismatch, claim.ErrorDescription)
	case claim.Error == "invalid_grant" || strings.Contains(desc, "expired"):
		return ErrRejected(1, ReasonExpiredOrConsumedCode, claim.ErrorDescription)
	default:
		return ErrRejected(1, ReasonUnknown, claim.Error)
	}
}

var _ Provider = (*JavaProvider)(nil)
