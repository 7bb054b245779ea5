package echo_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/mchub-dev/mchub/api/echo"
	"github.com/mchub-dev/mchub/domain"
	"github.com/mchub-dev/mchub/dto"
	"github.com/mchub-dev/mchub/internal/linking"
)

type staticAuthn struct{ accountID string }

func (a *staticAuthn) Authenticate(_ context.Context, credential string) (string, error) {
	if credential != "valid-session" {
		return "", linking.ErrUnauthenticated("invalid or expired session")
	}
	return a.accountID, nil
}

type scriptedProvider struct {
	name      string
	namespace domain.Namespace
	profile   *linking.ExternalProfile
	err       error
}

func (p *scriptedProvider) Name() string                { return p.name }
func (p *scriptedProvider) Namespace() domain.Namespace { return p.namespace }

func (p *scriptedProvider) Exchange(context.Context, string) (*linking.ExternalProfile, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.profile, nil
}

type apiRepo struct {
	accounts map[string]*domain.Account
}

func (r *apiRepo) GetAccountByID(_ context.Context, id string) (*domain.Account, error) {
	account, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (r *apiRepo) FindByExternalID(_ context.Context, ns domain.Namespace, externalID string) (*domain.Account, error) {
	for _, account := range r.accounts {
		if b := account.BindingFor(ns); b != nil && b.ExternalID == externalID {
			return account, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *apiRepo) UpdateBinding(_ context.Context, accountID string, b domain.Binding) (*domain.Account, error) {
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if b.Namespace == domain.NamespaceXbox {
		account.Xbox = &domain.XboxBinding{XUID: b.ExternalID, Gamertag: b.DisplayName, AvatarURL: b.AvatarURL}
	} else {
		account.Java = &domain.JavaBinding{ProfileID: b.ExternalID, ProfileName: b.DisplayName}
	}
	return account, nil
}

func (r *apiRepo) RemoveBinding(_ context.Context, accountID string, ns domain.Namespace) error {
	account, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if ns == domain.NamespaceXbox {
		if account.Xbox == nil {
			return domain.ErrBindingNotFound
		}
		account.Xbox = nil
		return nil
	}
	if account.Java == nil {
		return domain.ErrBindingNotFound
	}
	account.Java = nil
	return nil
}

func newTestServer(t *testing.T, providers ...linking.Provider) (*echo.Echo, *apiRepo) {
	t.Helper()
	repo := &apiRepo{accounts: map[string]*domain.Account{
		"acc-1": {ID: "acc-1", Username: "steve"},
	}}
	svc := linking.NewService(&staticAuthn{accountID: "acc-1"}, repo, providers...)

	e := echo.New()
	echoapi.NewLinkAPI(svc).RegisterRoutes(e)
	return e, repo
}

func doJSON(e *echo.Echo, method, path, body, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLinkHandler_Success(t *testing.T) {
	provider := &scriptedProvider{
		name:      "xbox",
		namespace: domain.NamespaceXbox,
		profile: &linking.ExternalProfile{
			ExternalID:  "2535412345678901",
			DisplayName: "CreeperSlayer42",
			AvatarURL:   "https://images.example/gamerpic.png",
		},
	}
	e, repo := newTestServer(t, provider)

	rec := doJSON(e, http.MethodPost, "/link/xbox",
		`{"authorization_artifact":"fresh-code"}`, "Bearer valid-session")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.LinkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CreeperSlayer42", resp.ExternalDisplayTag)
	require.NotNil(t, resp.AvatarRef)
	assert.Equal(t, "https://images.example/gamerpic.png", *resp.AvatarRef)

	require.NotNil(t, repo.accounts["acc-1"].Xbox)
	assert.Equal(t, "2535412345678901", repo.accounts["acc-1"].Xbox.XUID)
}

func TestLinkHandler_MissingAuthorization(t *testing.T) {
	e, _ := newTestServer(t, &scriptedProvider{name: "xbox", namespace: domain.NamespaceXbox})

	rec := doJSON(e, http.MethodPost, "/link/xbox",
		`{"authorization_artifact":"fresh-code"}`, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(linking.KindUnauthenticated), resp.Error)
}

func TestLinkHandler_MissingArtifact(t *testing.T) {
	e, _ := newTestServer(t, &scriptedProvider{name: "xbox", namespace: domain.NamespaceXbox})

	rec := doJSON(e, http.MethodPost, "/link/xbox", `{}`, "Bearer valid-session")

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(linking.KindInvalidInput), resp.Error)
}

func TestLinkHandler_Conflict(t *testing.T) {
	provider := &scriptedProvider{
		name:      "xbox",
		namespace: domain.NamespaceXbox,
		profile:   &linking.ExternalProfile{ExternalID: "2535412345678901", DisplayName: "CreeperSlayer42"},
	}
	e, repo := newTestServer(t, provider)
	repo.accounts["acc-2"] = &domain.Account{
		ID:       "acc-2",
		Username: "alex",
		Xbox:     &domain.XboxBinding{XUID: "2535412345678901", Gamertag: "CreeperSlayer42"},
	}

	rec := doJSON(e, http.MethodPost, "/link/xbox",
		`{"authorization_artifact":"fresh-code"}`, "Bearer valid-session")

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(linking.KindAlreadyLinked), resp.Error)
	assert.Equal(t, "alex", resp.ConflictingDisplayName)
}

func TestLinkHandler_ProviderRejection(t *testing.T) {
	provider := &scriptedProvider{
		name:      "xbox",
		namespace: domain.NamespaceXbox,
		err:       linking.ErrRejected(3, linking.ReasonRegionUnsupported, "account region is not supported"),
	}
	e, _ := newTestServer(t, provider)

	rec := doJSON(e, http.MethodPost, "/link/xbox",
		`{"authorization_artifact":"fresh-code"}`, "Bearer valid-session")

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(linking.KindProviderRejected), resp.Error)
	assert.Equal(t, string(linking.ReasonRegionUnsupported), resp.Reason)
}

func TestLinkHandler_MalformedBody(t *testing.T) {
	e, _ := newTestServer(t, &scriptedProvider{name: "xbox", namespace: domain.NamespaceXbox})

	rec := doJSON(e, http.MethodPost, "/link/xbox", `{not json`, "Bearer valid-session")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHandler(t *testing.T) {
	e, repo := newTestServer(t)
	repo.accounts["acc-1"].Java = &domain.JavaBinding{
		ProfileID:   "069a79f444e94726a5befca90e38aaf5",
		ProfileName: "Notch",
	}

	rec := doJSON(e, http.MethodGet, "/link", "", "Bearer valid-session")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.BindingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Bindings, 1)
	assert.Equal(t, "java", resp.Bindings[0].Provider)
	assert.Equal(t, "Notch", resp.Bindings[0].DisplayName)
}

func TestUnlinkHandler(t *testing.T) {
	provider := &scriptedProvider{name: "xbox", namespace: domain.NamespaceXbox}
	e, repo := newTestServer(t, provider)
	repo.accounts["acc-1"].Xbox = &domain.XboxBinding{XUID: "2535412345678901", Gamertag: "CreeperSlayer42"}

	rec := doJSON(e, http.MethodDelete, "/link/xbox", "", "Bearer valid-session")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, repo.accounts["acc-1"].Xbox)

	rec = doJSON(e, http.MethodDelete, "/link/xbox", "", "Bearer valid-session")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
