package dispatch

import (
	"time"

	"github.com/devtab-sh/secure-dev-manager/internal/apierror"
)

// Envelope is the uniform response shape every operation returns:
// {success, elapsed_seconds, payload|error}.
type Envelope struct {
	Success        bool        `json:"success"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	Payload        interface{} `json:"payload,omitempty"`
	Error          *ErrorBody  `json:"error,omitempty"`

	// Operation and ObservedAt are diagnostic-only, surfaced through the
	// ring buffer the debug HTTP endpoint reads; they are not part of the
	// wire contract described for RPC callers.
	Operation  string    `json:"operation,omitempty"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

// ErrorBody is the error triple every failing operation carries: a short
// classification, a concrete next action, and why the guard exists.
type ErrorBody struct {
	Error         string `json:"error"`
	Suggestion    string `json:"suggestion"`
	DeveloperHint string `json:"developer_hint"`
}

func success(operation string, elapsed time.Duration, payload interface{}) Envelope {
	return Envelope{
		Success:        true,
		ElapsedSeconds: elapsed.Seconds(),
		Payload:        payload,
		Operation:      operation,
		ObservedAt:     time.Now(),
	}
}

func failure(operation string, elapsed time.Duration, err *apierror.Error) Envelope {
	return Envelope{
		Success:        false,
		ElapsedSeconds: elapsed.Seconds(),
		Error: &ErrorBody{
			Error:         string(err.Kind),
			Suggestion:    err.Suggestion,
			DeveloperHint: err.DeveloperHint,
		},
		Operation:  operation,
		ObservedAt: time.Now(),
	}
}
