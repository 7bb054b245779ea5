package linking_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mchub-dev/mchub/internal/linking"
)

// xboxAuthority is a mock identity authority covering all three exchange
// hops and the profile settings endpoint.
type xboxAuthority struct {
	server *httptest.Server

	tokenCalls   atomic.Int32
	userCalls    atomic.Int32
	xstsCalls    atomic.Int32
	profileCalls atomic.Int32

	consumedCodes map[string]bool

	wantRedirectURI string
	xerr            int64
	profileStatus   int
}

func newXboxAuthority(t *testing.T) *xboxAuthority {
	t.Helper()
	a := &xboxAuthority{
		consumedCodes:   make(map[string]bool),
		wantRedirectURI: "https://mchub.example/link/xbox/callback",
		profileStatus:   http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth20_token.srf", a.handleToken)
	mux.HandleFunc("/user/authenticate", a.handleUserAuth)
	mux.HandleFunc("/xsts/authorize", a.handleXSTS)
	mux.HandleFunc("/users/me/profile/settings", a.handleProfile)

	a.server = httptest.NewServer(mux)
	t.Cleanup(a.server.Close)
	return a
}

func (a *xboxAuthority) provider() *linking.XboxProvider {
	return linking.NewXboxProvider(linking.XboxConfig{
		ClientID:      "xbox-client-id",
		ClientSecret:  "xbox-client-secret",
		RedirectURI:   a.wantRedirectURI,
		TokenEndpoint: a.server.URL + "/oauth20_token.srf",
		UserAuthURL:   a.server.URL + "/user/authenticate",
		XSTSAuthURL:   a.server.URL + "/xsts/authorize",
		ProfileURL:    a.server.URL + "/users/me/profile/settings?settings=GameDisplayPicRaw",
		HopTimeout:    5 * time.Second,
	})
}

func (a *xboxAuthority) handleToken(w http.ResponseWriter, r *http.Request) {
	a.tokenCalls.Add(1)
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")

	if r.FormValue("redirect_uri") != a.wantRedirectURI {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "The provided value for the 'redirect_uri' is not valid.",
		})
		return
	}

	code := r.FormValue("code")
	if a.consumedCodes[code] {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "The authorization code has expired or has already been redeemed.",
		})
		return
	}
	a.consumedCodes[code] = true

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "ms-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (a *xboxAuthority) handleUserAuth(w http.ResponseWriter, _ *http.Request) {
	a.userCalls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"Token": "xbl-user-token",
		"DisplayClaims": map[string]any{
			"xui": []map[string]string{{"uhs": "user-hash-1"}},
		},
	})
}

func (a *xboxAuthority) handleXSTS(w http.ResponseWriter, _ *http.Request) {
	a.xstsCalls.Add(1)
	w.Header().Set("Content-Type", "application/json")

	if a.xerr != 0 {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Identity": "0",
			"XErr":     a.xerr,
			"Message":  "rejected",
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"Token": "xsts-token",
		"DisplayClaims": map[string]any{
			"xui": []map[string]string{{
				"uhs": "user-hash-1",
				"xid": "2535412345678901",
				"gtg": "CreeperSlayer42",
			}},
		},
	})
}

func (a *xboxAuthority) handleProfile(w http.ResponseWriter, r *http.Request) {
	a.profileCalls.Add(1)
	if a.profileStatus != http.StatusOK {
		w.WriteHeader(a.profileStatus)
		return
	}
	// The XBL3.0 header must be composed from the user hash and the
	// XSTS token.
	if r.Header.Get("Authorization") != "XBL3.0 x=user-hash-1;xsts-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"profileUsers": []map[string]any{{
			"id": "2535412345678901",
			"settings": []map[string]string{{
				"id":    "GameDisplayPicRaw",
				"value": "https://images.example/gamerpic.png",
			}},
		}},
	})
}

func TestXboxProvider_Exchange_FullChain(t *testing.T) {
	authority := newXboxAuthority(t)
	provider := authority.provider()

	profile, err := provider.Exchange(context.Background(), "fresh-code")
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.Equal(t, "2535412345678901", profile.ExternalID)
	assert.Equal(t, "CreeperSlayer42", profile.DisplayName)
	assert.Equal(t, "https://images.example/gamerpic.png", profile.AvatarURL)

	assert.EqualValues(t, 1, authority.tokenCalls.Load())
	assert.EqualValues(t, 1, authority.userCalls.Load())
	assert.EqualValues(t, 1, authority.xstsCalls.Load())
	assert.EqualValues(t, 1, authority.profileCalls.Load())
}

func TestXboxProvider_Exchange_ReplayedArtifact(t *testing.T) {
	authority := newXboxAuthority(t)
	provider := authority.provider()

	_, err := provider.Exchange(context.Background(), "one-time-code")
	require.NoError(t, err)

	_, err = provider.Exchange(context.Background(), "one-time-code")
	require.Error(t, err)

	le, ok := linking.AsError(err)
	require.True(t, ok)
	assert.Equal(t, linking.KindProviderRejected, le.Kind)
	assert.Equal(t, linking.ReasonExpiredOrConsumedCode, le.Reason)
	assert.Equal(t, 1, le.Hop)

	// The rejected hop must not be retried: two Exchange calls, two
	// token-endpoint calls total.
	assert.EqualValues(t, 2, authority.tokenCalls.Load())
}

func TestXboxProvider_Exchange_RedirectMismatch(t *testing.T) {
	authority := newXboxAuthority(t)
	authority.wantRedirectURI = "https://mchub.example/other/callback"
	provider := linking.NewXboxProvider(linking.XboxConfig{
		ClientID:      "xbox-client-id",
		ClientSecret:  "xbox-client-secret",
		RedirectURI:   "https://mchub.example/link/xbox/callback",
		TokenEndpoint: authority.server.URL + "/oauth20_token.srf",
		UserAuthURL:   authority.server.URL + "/user/authenticate",
		XSTSAuthURL:   authority.server.URL + "/xsts/authorize",
		ProfileURL:    authority.server.URL + "/users/me/profile/settings",
	})

	_, err := provider.Exchange(context.Background(), "fresh-code")
	require.Error(t, err)

	le, ok := linking.AsError(err)
	require.True(t, ok)
	assert.Equal(t, linking.KindProviderRejected, le.Kind)
	assert.Equal(t, linking.ReasonRedirectMismatch, le.Reason)

	// The chain aborts at hop 1 after exactly one call: the rejected
	// code is never re-sent, and no later hop is attempted.
	assert.EqualValues(t, 1, authority.tokenCalls.Load())
	assert.EqualValues(t, 0, authority.userCalls.Load())
	assert.EqualValues(t, 0, authority.xstsCalls.Load())
}

func TestXboxProvider_Exchange_XErrMapping(t *testing.T) {
	cases := []struct {
		name   string
		xerr   int64
		reason linking.RejectionReason
	}{
		{"no xbox account", 2148916233, linking.ReasonUnsupportedAccountType},
		{"child account", 2148916238, linking.ReasonUnsupportedAccountType},
		{"region blocked", 2148916235, linking.ReasonRegionUnsupported},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authority := newXboxAuthority(t)
			authority.xerr = tc.xerr
			provider := authority.provider()

			_, err := provider.Exchange(context.Background(), "fresh-code")
			require.Error(t, err)

			le, ok := linking.AsError(err)
			require.True(t, ok)
			assert.Equal(t, linking.KindProviderRejected, le.Kind)
			assert.Equal(t, tc.reason, le.Reason)
			assert.Equal(t, 3, le.Hop)
			assert.EqualValues(t, 0, authority.profileCalls.Load())
		})
	}
}

func TestXboxProvider_Exchange_AvatarFetchDegrades(t *testing.T) {
	authority := newXboxAuthority(t)
	authority.profileStatus = http.StatusInternalServerError
	provider := authority.provider()

	profile, err := provider.Exchange(context.Background(), "fresh-code")
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.Equal(t, "2535412345678901", profile.ExternalID)
	assert.Equal(t, "CreeperSlayer42", profile.DisplayName)
	assert.Empty(t, profile.AvatarURL, "failed avatar fetch must degrade to no avatar")
}

func TestXboxProvider_Exchange_ProviderDown(t *testing.T) {
	authority := newXboxAuthority(t)
	provider := authority.provider()
	authority.server.Close()

	_, err := provider.Exchange(context.Background(), "fresh-code")
	require.Error(t, err)

	le, ok := linking.AsError(err)
	require.True(t, ok)
	assert.Equal(t, linking.KindProviderUnavailable, le.Kind)
}
