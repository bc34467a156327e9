package engine

// Outcome is the tagged result of an effect.
//
// Exactly one of Success, NotFound, RemoteFailure or ValidationFailure.
type Outcome interface {
	outcome()
}

// Success carries the data merged into state.
type Success struct {
	Data any
}

// NotFound reports a missing entity.
type NotFound struct {
	Message string
}

// RemoteFailure reports a failed call to an external service.
type RemoteFailure struct {
	Message string
}

// ValidationFailure reports input rejected before any remote call.
type ValidationFailure struct {
	Message string
}

func (Success) outcome()           {}
func (NotFound) outcome()          {}
func (RemoteFailure) outcome()     {}
func (ValidationFailure) outcome() {}

// Failure returns the message of a failed outcome and whether o failed.
func Failure(o Outcome) (string, bool) {
	switch v := o.(type) {
	case NotFound:
		return v.Message, true
	case RemoteFailure:
		return v.Message, true
	case ValidationFailure:
		return v.Message, true
	default:
		return "", false
	}
}

// Kind names the outcome variant, for traces and logs.
func Kind(o Outcome) string {
	switch o.(type) {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case RemoteFailure:
		return "remote_failure"
	case ValidationFailure:
		return "validation_failure"
	default:
		return ""
	}
}

// Remote wraps an error from an external service.
func Remote(err error) Outcome {
	return RemoteFailure{Message: err.Error()}
}
