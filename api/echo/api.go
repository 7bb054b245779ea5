//nolint:varnamelen
package echo

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/mchub-dev/mchub/dto"
	"github.com/mchub-dev/mchub/internal/linking"
)

// LinkAPI holds the HTTP surface of the account-linking service.
type LinkAPI struct {
	service *linking.Service
}

// NewLinkAPI initializes the linking API.
func NewLinkAPI(service *linking.Service) *LinkAPI {
	return &LinkAPI{service: service}
}

// RegisterRoutes registers the linking routes.
func (la *LinkAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/link/:provider", la.LinkHandler)
	e.GET("/link", la.ListHandler)
	e.DELETE("/link/:provider", la.UnlinkHandler)
	e.GET("/healthz", la.HealthHandler)
}

// LinkHandler runs one link request end to end: session check, exchange
// chain, profile resolution, uniqueness guard, persist.
func (la *LinkAPI) LinkHandler(c echo.Context) error {
	provider := c.Param("provider")
	credential := bearerCredential(c)

	var req dto.LinkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   string(linking.KindInvalidInput),
			Message: "malformed request body",
		})
	}

	result, err := la.service.Link(c.Request().Context(), provider, credential, req.AuthorizationArtifact)
	if err != nil {
		return la.errorResponse(c, err)
	}

	resp := dto.LinkResponse{ExternalDisplayTag: result.DisplayName}
	if result.AvatarURL != "" {
		resp.AvatarRef = &result.AvatarURL
	}
	return c.JSON(http.StatusOK, resp)
}

// ListHandler returns the authenticated account's bindings.
func (la *LinkAPI) ListHandler(c echo.Context) error {
	account, err := la.service.Bindings(c.Request().Context(), bearerCredential(c))
	if err != nil {
		return la.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.BindingsFromAccount(account))
}

// UnlinkHandler removes the authenticated account's binding for the
// provider's namespace.
func (la *LinkAPI) UnlinkHandler(c echo.Context) error {
	provider := c.Param("provider")
	if err := la.service.Unlink(c.Request().Context(), provider, bearerCredential(c)); err != nil {
		return la.errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HealthHandler is the liveness endpoint.
func (la *LinkAPI) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// bearerCredential extracts the session credential from the Authorization
// header. Absence is handled downstream as Unauthenticated.
func bearerCredential(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// errorResponse maps a linking error to its HTTP status and kind body.
func (la *LinkAPI) errorResponse(c echo.Context, err error) error {
	le, ok := linking.AsError(err)
	if !ok {
		log.Error().Err(err).Msg("link request failed with untyped error")
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: string(linking.KindInternal),
		})
	}

	body := dto.ErrorResponse{
		Error:                  string(le.Kind),
		Reason:                 string(le.Reason),
		ConflictingDisplayName: le.ConflictingName,
		Message:                le.Detail,
	}

	status := http.StatusInternalServerError
	switch le.Kind {
	case linking.KindInvalidInput:
		status = http.StatusBadRequest
	case linking.KindUnauthenticated:
		status = http.StatusUnauthorized
	case linking.KindAlreadyLinked:
		status = http.StatusConflict
	case linking.KindBindingNotFound:
		status = http.StatusNotFound
	case linking.KindProviderRejected, linking.KindProviderTimeout,
		linking.KindProviderUnavailable, linking.KindProfileUnavailable:
		status = http.StatusBadGateway
	case linking.KindInternal:
		log.Error().Err(err).Msg("link request failed")
	}

	return c.JSON(status, body)
}
