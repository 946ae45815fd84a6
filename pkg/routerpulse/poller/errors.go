package poller

import (
	"errors"
	"fmt"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fetch error taxonomy
// ─────────────────────────────────────────────────────────────────────────────

// ErrNoData means the relay answered with its explicit "no data yet" marker.
var ErrNoData = errors.New("poller: relay has no data yet")

// ErrCycleInProgress is reported when Poll is called while another cycle is
// still running. The call is dropped, not queued.
var ErrCycleInProgress = errors.New("poller: poll cycle already in progress")

// TransportError is a network or connection failure.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("poller: transport %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a non-success HTTP response.
type ProtocolError struct {
	URL        string
	StatusCode int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("poller: %s returned HTTP %d", e.URL, e.StatusCode)
}

// MalformedPayload is a response body that cannot be read as a snapshot.
type MalformedPayload struct {
	Err error
}

func (e *MalformedPayload) Error() string {
	return fmt.Sprintf("poller: malformed payload: %v", e.Err)
}

func (e *MalformedPayload) Unwrap() error { return e.Err }

// ─────────────────────────────────────────────────────────────────────────────
// Outcome classification
// ─────────────────────────────────────────────────────────────────────────────

// Outcome labels one poll cycle. The values double as metric label values.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransport Outcome = "transport_error"
	OutcomeProtocol  Outcome = "protocol_error"
	OutcomeMalformed Outcome = "malformed_payload"
	OutcomeNoData    Outcome = "no_data"
	OutcomeSkipped   Outcome = "skipped"
)

// Classify maps a fetch error onto its Outcome. Unknown errors count as
// transport failures.
func Classify(err error) Outcome {
	var (
		tErr *TransportError
		pErr *ProtocolError
		mErr *MalformedPayload
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrCycleInProgress):
		return OutcomeSkipped
	case errors.Is(err, ErrNoData):
		return OutcomeNoData
	case errors.As(err, &pErr):
		return OutcomeProtocol
	case errors.As(err, &mErr):
		return OutcomeMalformed
	case errors.As(err, &tErr):
		return OutcomeTransport
	default:
		return OutcomeTransport
	}
}
