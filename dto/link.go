package dto

import "github.com/mchub-dev/mchub/domain"

// LinkRequest is the POST /link/{provider} body. The session credential
// travels in the Authorization header, not the body.
type LinkRequest struct {
	AuthorizationArtifact string `json:"authorization_artifact"`
}

// LinkResponse is the success payload of POST /link/{provider}.
type LinkResponse struct {
	ExternalDisplayTag string  `json:"external_display_tag"`
	AvatarRef          *string `json:"avatar_ref,omitempty"`
}

// BindingInfo describes one persisted binding in GET /link responses.
type BindingInfo struct {
	Provider    string `json:"provider"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// BindingsResponse is the GET /link payload.
type BindingsResponse struct {
	Bindings []BindingInfo `json:"bindings"`
}

// ErrorResponse carries the error kind discriminator. It never contains a
// raw provider token or secret.
type ErrorResponse struct {
	Error                  string `json:"error"`
	Reason                 string `json:"reason,omitempty"`
	ConflictingDisplayName string `json:"conflicting_display_name,omitempty"`
	Message                string `json:"message,omitempty"`
}

// BindingsFromAccount flattens an account's bindings into the transport
// shape.
func BindingsFromAccount(account *domain.Account) BindingsResponse {
	resp := BindingsResponse{Bindings: []BindingInfo{}}
	if account.Java != nil {
		resp.Bindings = append(resp.Bindings, BindingInfo{
			Provider:    "java",
			ExternalID:  account.Java.ProfileID,
			DisplayName: account.Java.ProfileName,
		})
	}
	if account.Xbox != nil {
		resp.Bindings = append(resp.Bindings, BindingInfo{
			Provider:    "xbox",
			ExternalID:  account.Xbox.XUID,
			DisplayName: account.Xbox.Gamertag,
			AvatarRef:   account.Xbox.AvatarURL,
		})
	}
	return resp
}
