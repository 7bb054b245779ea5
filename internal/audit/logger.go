package audit

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is one audit trail record. Link and unlink mutations are audited;
// read-only calls are not.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	Account   string    `json:"account,omitempty"`  // local account id
	Provider  string    `json:"provider,omitempty"` // provider route name
	Target    string    `json:"target,omitempty"`   // external id involved
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

const serviceName = "mchub-linkd"

var auditLogger = log.Output(os.Stdout).With().Logger()

// Log records an audit event for a binding mutation.
func Log(action, account, provider, target string, success bool, err error) {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Service:   serviceName,
		Action:    action,
		Account:   account,
		Provider:  provider,
		Target:    target,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}

	entry, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		log.Error().Err(marshalErr).Msg("Failed to marshal audit event to JSON")
		auditLogger.Error().
			Str("service", serviceName).
			Str("action", action).
			Str("account", account).
			Str("provider", provider).
			Bool("success", success).
			Err(err).
			Msg("Audit Log (fallback)")
		return
	}
	auditLogger.Log().RawJSON("audit_event", entry).Msg("")
}
