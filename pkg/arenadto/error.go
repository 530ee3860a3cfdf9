package arenadto

// Rejection codes carried on move-rejected and similar messages.
const (
	CodeNotInSession       = "NotInSession"
	CodeSessionNotActive   = "SessionNotActive"
	CodeOutOfTurn          = "OutOfTurn"
	CodeIllegalMove        = "IllegalMove"
	CodeSessionUnavailable = "SessionUnavailable"
	CodeAlreadyQueued      = "AlreadyQueued"
	CodeNotFound           = "NotFound"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}
