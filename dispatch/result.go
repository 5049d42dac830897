package dispatch

import (
	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/frame"
)

// Outcome is the per-device fate of one dispatch.  Every condition on the
// dispatch path is data in a Result, never a Go error; partial success must
// always be expressible.
type Outcome string

const (
	// OutcomeCompleted indicates the device reported successful execution,
	// or that a fire-and-forget frame was written to the device.
	OutcomeCompleted Outcome = "completed"

	// OutcomeFailed indicates the device reported a terminal failure.
	OutcomeFailed Outcome = "failed"

	// OutcomeRejected indicates the device refused the command outright.
	// Commands only.
	OutcomeRejected Outcome = "rejected"

	// OutcomePartial indicates a content delivery where some media landed
	// and some did not.  Content only.
	OutcomePartial Outcome = "partial"

	// OutcomeTimeout indicates no terminal acknowledgement arrived within
	// the dispatch timeout.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeNotConnected indicates the device held no live session at
	// send time.
	OutcomeNotConnected Outcome = "not_connected"

	// OutcomeDisconnected indicates the session was torn down while the
	// dispatch was in flight.
	OutcomeDisconnected Outcome = "disconnected"

	// OutcomeCancelled indicates the administrative caller gave up before
	// the device answered.
	OutcomeCancelled Outcome = "cancelled"

	// OutcomeShuttingDown indicates the hub terminated while the dispatch
	// was pending, or refused to accept it at all.
	OutcomeShuttingDown Outcome = "shutting_down"
)

// Success indicates whether this outcome counts as a success.  Completed is
// the only one; Partial in particular does not.
func (o Outcome) Success() bool {
	return o == OutcomeCompleted
}

func (o Outcome) String() string {
	return string(o)
}

// Result is the per-device dispatch outcome delivered to the administrative
// caller.
type Result struct {
	DeviceID      device.ID `json:"deviceID"`
	CorrelationID string    `json:"correlationID"`
	Outcome       Outcome   `json:"outcome"`

	// Message carries device-supplied detail from the terminal
	// acknowledgement, or a short description of a hub-side condition.
	Message string `json:"message,omitempty"`

	// TimedOut is set when the outcome is OutcomeTimeout.  Kept as a
	// separate field so aggregate consumers can count timeouts without
	// switching on Outcome.
	TimedOut bool `json:"timedOut,omitempty"`

	// Ack is the terminal acknowledgement that resolved this dispatch,
	// when one arrived.  Nil for every hub-side outcome.
	Ack frame.Ack `json:"ack,omitempty"`
}

// GroupResult aggregates the per-device results of one fan-out.  The
// aggregate itself never fails because individual devices failed.
type GroupResult struct {
	// Group is the fleet name the fan-out targeted, empty for a broadcast
	// to all connected devices.
	Group string `json:"group,omitempty"`

	TargetDevices int `json:"targetDevices"`
	Successful    int `json:"successful"`
	Failed        int `json:"failed"`
	TimedOut      int `json:"timedOut"`

	Results []Result `json:"results"`
}

// add appends one per-device result and maintains the aggregate counters.
func (gr *GroupResult) add(r Result) {
	gr.Results = append(gr.Results, r)
	if r.Outcome.Success() {
		gr.Successful++
		return
	}

	gr.Failed++
	if r.TimedOut {
		gr.TimedOut++
	}
}
