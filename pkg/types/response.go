package types

// SuccessEnvelope wraps every 2xx JSON body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps every error body so clients can branch on one shape.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code string `json:"code"`
	// Reason refines Code for business rejections, e.g. INSUFFICIENT_STOCK.
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
