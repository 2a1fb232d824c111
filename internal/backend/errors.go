package backend

import "fmt"

// ServiceError reports a failed call to the remote speech-recognition
// service: network, authentication, quota, or a non-success response. The
// message carries the stable "transcription service" marker so boundary
// layers can map it to a generic backend-unavailable response, and it never
// includes credentials.
type ServiceError struct {
	Backend string
	Status  int
	Detail  string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transcription service %s: HTTP %d: %s", e.Backend, e.Status, e.Detail)
	}
	if e.Detail != "" {
		return fmt.Sprintf("transcription service %s: %s", e.Backend, e.Detail)
	}
	return fmt.Sprintf("transcription service %s: request failed", e.Backend)
}

func (e *ServiceError) Unwrap() error { return e.Err }
