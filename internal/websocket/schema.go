package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionUpload    Action = "upload"
	ActionTabSwitch Action = "tab_switch"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestPayload carries every client action; unused fields stay empty.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QID            string `json:"q_id,omitempty"`
	SelectedOption int    `json:"selected_option,omitempty"`

	// upload
	UploadType  string `json:"upload_type,omitempty"`
	DocumentRef string `json:"document_ref,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventViolation Event = "violation"
	EventFinalized Event = "finalized"
	EventPong      Event = "pong"
)

// SavedResponse acknowledges an accepted answer or upload action. The write
// may still be pending in the autosave buffer when this is sent.
type SavedResponse struct {
	Event         Event  `json:"event"`
	QID           string `json:"q_id,omitempty"`
	UploadType    string `json:"upload_type,omitempty"`
	AnsweredCount int    `json:"answered_count"`
}

// ViolationResponse acknowledges a recorded violation with the new totals.
type ViolationResponse struct {
	Event            Event `json:"event"`
	TabSwitchCount   int   `json:"tab_switch_count"`
	WindowCloseCount int   `json:"window_close_count"`
}

// FinalizedResponse tells the client the attempt is terminal.
type FinalizedResponse struct {
	Event      Event  `json:"event"`
	AutoClosed bool   `json:"auto_closed"`
	State      string `json:"state"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}
