package ids

import "fmt"

// ErrorKind is a closed enum covering every error kind the runtime can raise.
type ErrorKind string

const (
	ErrGoalMismatch          ErrorKind = "GoalMismatch"
	ErrMaxTurnsExceeded      ErrorKind = "MaxTurnsExceeded"
	ErrCancelled             ErrorKind = "Cancelled"
	ErrTotalTimeout          ErrorKind = "TotalTimeout"
	ErrLlmTransportError     ErrorKind = "LlmTransportError"
	ErrLlmEmptyResponse      ErrorKind = "LlmEmptyResponse"
	ErrLlmParseError         ErrorKind = "LlmParseError"
	ErrLlmSchemaError        ErrorKind = "LlmSchemaError"
	ErrLlmTimeout            ErrorKind = "LlmTimeout"
	ErrToolNotFound          ErrorKind = "ToolNotFound"
	ErrValidationError       ErrorKind = "ValidationError"
	ErrTimeout               ErrorKind = "Timeout"
	ErrToolException         ErrorKind = "ToolException"
	ErrReasoningParseError   ErrorKind = "ReasoningParseError"
	ErrReasoningLowConf      ErrorKind = "ReasoningLowConfidence"
	ErrStatePersistError     ErrorKind = "StatePersistError"
)

// retryableKinds holds the kinds that are retryable by default, per spec.md §7
// ("LlmTransportError (retryable)"). Other kinds may still be marked Retryable
// explicitly on construction (e.g. a tool that signals a transient failure).
var retryableKinds = map[ErrorKind]bool{
	ErrLlmTransportError: true,
}

// Error is the concrete carrier for every error kind in the taxonomy.
type Error struct {
	Kind      ErrorKind
	Message   string
	Field     string // the offending field for ErrValidationError; a raw-output excerpt for ErrLlmParseError
	Retryable bool
}

// New builds an Error of the given kind, defaulting Retryable from the kind.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryableKinds[kind]}
}

// Newf builds an Error with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// WithField returns a copy of e with Field set, for ErrValidationError.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is supports errors.Is(err, &Error{Kind: someKind}) comparisons by kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindSentinel is a convenience sentinel constructor for errors.Is(err, ids.KindSentinel(Kind)).
func KindSentinel(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}
