package model

// ErrorResponse is the standard envelope for error responses returned by the
// gateway itself (upstream error payloads are relayed verbatim).
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// KeyCreatedResponse is returned by generate and rotate operations. It is the
// only place the raw key material ever appears; it cannot be retrieved again.
type KeyCreatedResponse struct {
	Key     string  `json:"key"`
	Record  *APIKey `json:"record"`
	Warning string  `json:"warning"`
}
