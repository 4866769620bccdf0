// Package outcome defines the result value every message handler
// returns. Business failures travel as values, never as errors, so the
// dispatcher can ack them and the broker never redelivers content that
// cannot succeed. Only technical faults (bad JSON, broken I/O) travel
// as Go errors and end up in the dead-letter queue.
package outcome

import "fmt"

type Code int

const (
	OK Code = iota
	AlreadyProcessed
	Failed
)

// Kind names the business failure taxonomy.
type Kind string

const (
	KindNone            Kind = ""
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindConcurrencyLost Kind = "concurrency_lost"
	KindTTLExceeded     Kind = "ttl_exceeded"
	KindBadPayload      Kind = "bad_payload"
)

type Result struct {
	Code   Code
	Kind   Kind
	Reason string
}

func Ok() Result {
	return Result{Code: OK}
}

func Already(reason string) Result {
	return Result{Code: AlreadyProcessed, Reason: reason}
}

func Fail(kind Kind, reason string) Result {
	return Result{Code: Failed, Kind: kind, Reason: reason}
}

func (r Result) Failure() bool {
	return r.Code == Failed
}

func (r Result) String() string {
	switch r.Code {
	case OK:
		return "ok"
	case AlreadyProcessed:
		return fmt.Sprintf("already processed (%s)", r.Reason)
	default:
		return fmt.Sprintf("failed [%s]: %s", r.Kind, r.Reason)
	}
}
