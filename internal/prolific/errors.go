package prolific

import "fmt"

// maxErrorBody bounds how much of a response body is kept on an error.
const maxErrorBody = 512

func truncate(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "…"
}

// TransportError means the request could not be completed (DNS, connection reset, timeout).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the response body was not the structured data the operation expects.
type ProtocolError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: invalid response (status %d): %v: %s", e.Op, e.Status, e.Err, e.Body)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RenewalError means the token renewal round trip did not yield an access token.
type RenewalError struct {
	Status int
	Reason string
	Err    error
}

func (e *RenewalError) Error() string {
	msg := fmt.Sprintf("renew_token: %s", e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RenewalError) Unwrap() error { return e.Err }
