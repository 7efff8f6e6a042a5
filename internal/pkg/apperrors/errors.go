package apperrors

import "fmt"

// ValidationError marks malformed inbound data. Messages carrying it
// are logged and dropped, never retried.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Msg, e.Err)
	}
	return "validation: " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError marks an unavailable or failing durable store.
// Callers retry it or hand the message back to the transport.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AuthenticityError marks a webhook whose signature did not verify.
// The request is rejected before any internal state is touched.
type AuthenticityError struct {
	Msg string
}

func (e *AuthenticityError) Error() string { return "authenticity: " + e.Msg }

// StepExecutionError marks a workflow step that exhausted its retry
// budget and failed the run.
type StepExecutionError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// ExternalServiceError marks a best-effort collaborator failure
// (mailer, analytics). It is logged and never rolls back committed
// ledger state.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
