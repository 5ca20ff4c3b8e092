package upstream

// tokenResponse is the body returned by the password-grant token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// ControlKind names a device control intent on the wire.
type ControlKind string

const (
	ControlToggle   ControlKind = "toggle"
	ControlAuto     ControlKind = "auto"
	ControlSchedule ControlKind = "schedule"
)

// controlRequest is the body of a device control call. Payload is a boolean
// for toggle/auto and a schedule object for schedule.
type controlRequest struct {
	Type    ControlKind `json:"type"`
	Payload any         `json:"payload"`
}
