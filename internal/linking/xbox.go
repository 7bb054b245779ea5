package linking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/mchub-dev/mchub/domain"
)

// Default endpoints for the Xbox exchange chain. XboxConfig overrides let
// tests point the chain at a local authority.
const (
	DefaultMSTokenEndpoint = "https://login.live.com/oauth20_token.srf"
	DefaultXboxUserAuthURL = "https://user.auth.xboxlive.com/user/authenticate"
	DefaultXboxXSTSAuthURL = "https://xsts.auth.xboxlive.com/xsts/authorize"
	DefaultXboxProfileURL  = "https://profile.xboxlive.com/users/me/profile/settings?settings=GameDisplayPicRaw"
	defaultHopTimeout      = 10 * time.Second
	userAuthRelyingParty   = "http://auth.xboxlive.com"
	xstsRelyingParty       = "http://xboxlive.com"
)

// XErr codes the XSTS endpoint returns on a 401 for accounts that cannot
// be linked.
const (
	xerrNoXboxAccount = 2148916233
	xerrRegionBlocked = 2148916235
	xerrAdultVerify   = 2148916236
	xerrChildAccount  = 2148916238
)

// XboxConfig configures the 3-hop Xbox ticket exchange.
type XboxConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURI must byte-for-byte match the URI the authorization
	// artifact was issued against, or hop 1 fails with invalid_grant.
	RedirectURI string

	TokenEndpoint string // hop 1, defaults to DefaultMSTokenEndpoint
	UserAuthURL   string // hop 2, defaults to DefaultXboxUserAuthURL
	XSTSAuthURL   string // hop 3, defaults to DefaultXboxXSTSAuthURL
	ProfileURL    string // optional avatar fetch, defaults to DefaultXboxProfileURL
	HopTimeout    time.Duration
}

// XboxProvider resolves an Xbox network identity through the ticket-based
// exchange chain: authorization code -> Microsoft access token -> Xbox user
// token -> XSTS token. The XSTS display claims carry the XUID, gamertag and
// user hash; one extra optional call fetches the gamerpic.
type XboxProvider struct {
	cfg    XboxConfig
	client *http.Client
}

// NewXboxProvider creates the provider, filling endpoint defaults.
func NewXboxProvider(cfg XboxConfig) *XboxProvider {
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = DefaultMSTokenEndpoint
	}
	if cfg.UserAuthURL == "" {
		cfg.UserAuthURL = DefaultXboxUserAuthURL
	}
	if cfg.XSTSAuthURL == "" {
		cfg.XSTSAuthURL = DefaultXboxXSTSAuthURL
	}
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = DefaultXboxProfileURL
	}
	if cfg.HopTimeout <= 0 {
		cfg.HopTimeout = defaultHopTimeout
	}
	return &XboxProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HopTimeout},
	}
}

func (p *XboxProvider) Name() string { return "xbox" }

func (p *XboxProvider) Namespace() domain.Namespace { return domain.NamespaceXbox }

// Exchange runs hops 1..3 and the optional profile fetch. Any hop failing
// aborts the chain; no hop is ever retried.
func (p *XboxProvider) Exchange(ctx context.Context, artifact string) (*ExternalProfile, error) {
	accessToken, err := p.exchangeAuthorizationCode(ctx, artifact)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("provider", p.Name()).Str("access_token", truncateToken(accessToken)).Msg("authorization artifact exchanged")

	userToken, userHash, err := p.exchangeUserToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	claims, xstsToken, err := p.exchangeXSTSToken(ctx, userToken)
	if err != nil {
		return nil, err
	}
	if claims.XUID == "" || claims.Gamertag == "" {
		return nil, ErrProfileUnavailable("XSTS display claims missing xid or gtg")
	}
	if userHash == "" {
		userHash = claims.UserHash
	}

	profile := &ExternalProfile{
		ExternalID:  claims.XUID,
		DisplayName: claims.Gamertag,
	}

	// Avatar is best-effort: a failed settings call degrades to no
	// avatar instead of failing the link.
	if avatar, avatarErr := p.fetchGamerpic(ctx, userHash, xstsToken); avatarErr != nil {
		log.Warn().Err(avatarErr).Str("provider", p.Name()).Msg("gamerpic fetch failed, linking without avatar")
	} else {
		profile.AvatarURL = avatar
	}

	return profile, nil
}

// exchangeAuthorizationCode is hop 1: the OAuth authorization-code grant
// against the Microsoft identity platform.
func (p *XboxProvider) exchangeAuthorizationCode(ctx context.Context, code string) (string, error) {
	conf := &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURI,
		Scopes:       []string{"XboxLive.signin", "offline_access"},
		Endpoint: oauth2.Endpoint{
			TokenURL: p.cfg.TokenEndpoint,
			// Pinned so the oauth2 package never probes client-auth
			// styles with a second POST; the one-time code must hit
			// the endpoint exactly once.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", classifyOAuthRejection(1, re)
		}
		return "", classifyTransportErr(1, err)
	}
	if tok.AccessToken == "" {
		return "", ErrRejected(1, ReasonUnknown, "token endpoint returned no access token")
	}
	return tok.AccessToken, nil
}

// classifyOAuthRejection maps a token-endpoint error response onto the
// rejection taxonomy. invalid_grant covers both a consumed/expired code and
// a redirect URI mismatch; the error description tells them apart.
func classifyOAuthRejection(hop int, re *oauth2.RetrieveError) *Error {
	if re.Response != nil && re.Response.StatusCode >= 500 {
		return ErrUnavailable(hop, re)
	}
	desc := strings.ToLower(re.ErrorDescription)
	if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_request" {
		if strings.Contains(desc, "redirect") {
			return ErrRejected(hop, ReasonRedirectMismatch, re.ErrorDescription)
		}
		return ErrRejected(hop, ReasonExpiredOrConsumedCode, re.ErrorDescription)
	}
	return ErrRejected(hop, ReasonUnknown, re.ErrorCode)
}

type xboxTicketRequest struct {
	Properties   map[string]any `json:"Properties"`
	RelyingParty string         `json:"RelyingParty"`
	TokenType    string         `json:"TokenType"`
}

type xboxTicketResponse struct {
	Token         string `json:"Token"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
			XID string `json:"xid"`
			GTG string `json:"gtg"`
		} `json:"xui"`
	} `json:"DisplayClaims"`
	XErr    int64  `json:"XErr"`
	Message string `json:"Message"`
}

// exchangeUserToken is hop 2: present the Microsoft access token to the
// Xbox user-authentication endpoint for a JWT user token.
func (p *XboxProvider) exchangeUserToken(ctx context.Context, accessToken string) (token, userHash string, err error) {
	req := xboxTicketRequest{
		Properties: map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + accessToken,
		},
		RelyingParty: userAuthRelyingParty,
		TokenType:    "JWT",
	}

	resp, err := p.postTicket(ctx, 2, p.cfg.UserAuthURL, req)
	if err != nil {
		return "", "", err
	}
	if resp.Token == "" {
		return "", "", ErrProfileUnavailable("user token response missing Token")
	}
	if len(resp.DisplayClaims.XUI) > 0 {
		userHash = resp.DisplayClaims.XUI[0].UHS
	}
	return resp.Token, userHash, nil
}

// xstsClaims is the identity subset of the XSTS display claims.
type xstsClaims struct {
	XUID     string
	Gamertag string
	UserHash string
}

// exchangeXSTSToken is hop 3: present the user token to the XSTS
// authorization endpoint for the security token carrying identity claims.
func (p *XboxProvider) exchangeXSTSToken(ctx context.Context, userToken string) (*xstsClaims, string, error) {
	req := xboxTicketRequest{
		Properties: map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{userToken},
		},
		RelyingParty: xstsRelyingParty,
		TokenType:    "JWT",
	}

	resp, err := p.postTicket(ctx, 3, p.cfg.XSTSAuthURL, req)
	if err != nil {
		return nil, "", err
	}
	if len(resp.DisplayClaims.XUI) == 0 {
		return nil, "", ErrProfileUnavailable("XSTS response missing display claims")
	}
	xui := resp.DisplayClaims.XUI[0]
	return &xstsClaims{XUID: xui.XID, Gamertag: xui.GTG, UserHash: xui.UHS}, resp.Token, nil
}

// postTicket performs one ticket-exchange call and decodes the response,
// mapping XErr rejections and transport failures to the error taxonomy.
func (p *XboxProvider) postTicket(ctx context.Context, hop int, endpoint string, body xboxTicketRequest) (*xboxTicketResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, ErrInternal(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, ErrInternal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-xbl-contract-version", "1")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(hop, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, classifyTransportErr(hop, err)
	}

	var resp xboxTicketResponse
	// Rejections arrive as JSON too; decode before the status check so
	// XErr is available.
	if unmarshalErr := json.Unmarshal(raw, &resp); unmarshalErr != nil && httpResp.StatusCode == http.StatusOK {
		return nil, ErrProfileUnavailable(fmt.Sprintf("malformed ticket response at hop %d", hop))
	}

	switch {
	case httpResp.StatusCode == http.StatusOK:
		return &resp, nil
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, classifyXErr(hop, resp.XErr, resp.Message)
	case httpResp.StatusCode >= 500:
		return nil, ErrUnavailable(hop, fmt.Errorf("ticket endpoint returned %d", httpResp.StatusCode))
	default:
		return nil, ErrRejected(hop, ReasonUnknown, fmt.Sprintf("status %d", httpResp.StatusCode))
	}
}

func classifyXErr(hop int, xerr int64, message string) *Error {
	switch xerr {
	case xerrNoXboxAccount:
		return ErrRejected(hop, ReasonUnsupportedAccountType, "no Xbox account for this identity")
	case xerrChildAccount, xerrAdultVerify:
		return ErrRejected(hop, ReasonUnsupportedAccountType, "child or managed account cannot be linked")
	case xerrRegionBlocked:
		return ErrRejected(hop, ReasonRegionUnsupported, "Xbox network unavailable in this region")
	default:
		return ErrRejected(hop, ReasonUnknown, message)
	}
}

// fetchGamerpic performs the optional profile-settings call using the
// XBL3.0 authorization composed from the user hash and XSTS token.
func (p *XboxProvider) fetchGamerpic(ctx context.Context, userHash, xstsToken string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ProfileURL, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("XBL3.0 x=%s;%s", userHash, xstsToken))
	httpReq.Header.Set("x-xbl-contract-version", "2")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile settings returned %d", httpResp.StatusCode)
	}

	var settings struct {
		ProfileUsers []struct {
			Settings []struct {
				ID    string `json:"id"`
				Value string `json:"value"`
			} `json:"settings"`
		} `json:"profileUsers"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&settings); err != nil {
		return "", err
	}
	for _, user := range settings.ProfileUsers {
		for _, s := range user.Settings {
			if s.ID == "GameDisplayPicRaw" && s.Value != "" {
				return s.Value, nil
			}
		}
	}
	return "", errors.New("GameDisplayPicRaw not present in profile settings")
}

var _ Provider = (*XboxProvider)(nil)
