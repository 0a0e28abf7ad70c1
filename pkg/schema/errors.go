package schema

// ErrorCode is the closed error taxonomy surfaced to clients.
type ErrorCode string

const (
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrNoData           ErrorCode = "NO_DATA"
	ErrBudgetExceeded   ErrorCode = "BUDGET_EXCEEDED"
	ErrModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	ErrInternal         ErrorCode = "INTERNAL"
)

// Retryable reports the fixed retry semantics of an error code.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrNoData, ErrModelUnavailable, ErrInternal:
		return true
	default:
		return false
	}
}

// ErrorResponse is the error envelope. UserMessage is a short non-technical
// sentence; TechMessage carries the last underlying error text.
type ErrorResponse struct {
	Code        ErrorCode `json:"code"`
	UserMessage string    `json:"user_message"`
	TechMessage string    `json:"tech_message"`
	Retryable   bool      `json:"retryable"`
	Meta        Meta      `json:"meta"`
}

// NewError builds an error envelope with the code's fixed retryability.
func NewError(code ErrorCode, userMsg, techMsg string, meta Meta) *ErrorResponse {
	return &ErrorResponse{
		Code:        code,
		UserMessage: userMsg,
		TechMessage: techMsg,
		Retryable:   code.Retryable(),
		Meta:        meta,
	}
}
