// Package notify bridges Postgres row-change notifications to websocket
// subscribers. Triggers publish JSON payloads on a single channel; the
// listener fans them out to a hub that filters per tenant and incident.
package notify

// Channel is the Postgres NOTIFY channel the migration triggers publish on.
const Channel = "record_change"

// Event is one row-change notification as emitted by the record_change()
// trigger function. Incident events carry the commander session so clients
// can tell a command handover from an ordinary field update.
type Event struct {
	Table              string `json:"table"`
	Op                 string `json:"op"`
	ID                 string `json:"id"`
	TenantID           string `json:"tenant_id"`
	IncidentID         string `json:"incident_id,omitempty"`
	UserID             string `json:"user_id,omitempty"`
	CommanderSessionID string `json:"commander_session,omitempty"`
}
