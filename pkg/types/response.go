package types

// SuccessEnvelope wraps every 2xx body. Data is always present, even when null.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a pkg/errors value. Retryable marks upstream
// failures (distance lookup, Stripe) where the shopper can simply try again;
// business-rule rejections never set it.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// ErrorCode returns the code of a decoded error envelope, or "" for a success body.
func (e ErrorEnvelope) ErrorCode() string {
	return e.Error.Code
}
