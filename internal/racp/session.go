package racp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// State is the procedure step the session is in.
type State int

const (
	Idle State = iota
	CountRequested
	BulkRequested
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CountRequested:
		return "count requested"
	case BulkRequested:
		return "bulk requested"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyStarted is returned by Begin on a session that has already begun.
var ErrAlreadyStarted = errors.New("racp session already started")

// ProtocolError reports an indication the session cannot accept.
// The session halts when it is returned.
type ProtocolError struct {
	Opcode Opcode
	State  State
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("racp protocol error: %s in state %s: %s", e.Opcode, e.State, e.Reason)
}

// Outcome tells the caller what to do after an indication.
type Outcome struct {
	// Write, when non-nil, must be written to the control point and its
	// result reported through Acknowledge with Write[0] as the opcode.
	Write []byte

	// Completed is set when the procedure has reached a terminal response.
	Completed bool

	// Response is set when a RESPONSE_CODE indication was consumed.
	Response *Response
}

// Session tracks one RACP procedure. It is not safe for concurrent use;
// the owner serializes access.
type Session struct {
	state    State
	begun    bool
	inFlight Opcode
	awaited  Opcode

	expected    int
	hasExpected bool
	received    int

	complete bool
	halted   bool
	reason   string
	response *Response
}

// New returns an idle session.
func New() *Session {
	return &Session{}
}

// Begin starts the procedure by requesting the stored record count.
func (s *Session) Begin() ([]byte, error) {
	if s.begun || s.halted {
		return nil, ErrAlreadyStarted
	}
	s.begun = true
	s.inFlight = OpReportNumberOfStoredRecords
	return Request(OpReportNumberOfStoredRecords, OperatorAllRecords), nil
}

// Acknowledge reports the result of writing the request with the given opcode.
// On failure the session keeps its state and is not retried.
// Results for requests no longer in flight are ignored.
func (s *Session) Acknowledge(op Opcode, err error) {
	if op == OpNone || op != s.inFlight {
		return
	}
	s.inFlight = OpNone
	if err != nil {
		return
	}
	s.accepted(op)
}

// accepted moves to the step that awaits the response to op.
func (s *Session) accepted(op Opcode) {
	switch op {
	case OpReportNumberOfStoredRecords:
		s.state = CountRequested
		s.awaited = OpNumberOfStoredRecordsResponse
	case OpReportStoredRecords:
		s.state = BulkRequested
		s.awaited = OpResponseCode
	}
}

// expects reports whether resp is the response to the pending request.
// An indication for a request still in flight means the write landed
// before its acknowledgement reached us.
func (s *Session) expects(resp Opcode) bool {
	if s.awaited == resp {
		return true
	}
	switch s.inFlight {
	case OpReportNumberOfStoredRecords:
		if resp == OpNumberOfStoredRecordsResponse || resp == OpResponseCode {
			s.inFlight = OpNone
			s.accepted(OpReportNumberOfStoredRecords)
			return true
		}
	case OpReportStoredRecords:
		if resp == OpResponseCode {
			s.inFlight = OpNone
			s.accepted(OpReportStoredRecords)
			return true
		}
	}
	// The device may reject the count request with a response code.
	return resp == OpResponseCode && s.awaited == OpNumberOfStoredRecordsResponse
}

func (s *Session) halt(op Opcode, reason string) error {
	err := &ProtocolError{Opcode: op, State: s.state, Reason: reason}
	s.halted = true
	s.reason = err.Error()
	s.inFlight = OpNone
	s.awaited = OpNone
	return err
}

// HandleIndication consumes a control point indication.
func (s *Session) HandleIndication(data []byte) (Outcome, error) {
	if len(data) == 0 {
		return Outcome{}, s.halt(OpNone, "empty indication")
	}
	op := Opcode(data[0])
	if s.complete || s.halted {
		return Outcome{}, &ProtocolError{Opcode: op, State: s.state, Reason: "session already finished"}
	}

	switch op {
	case OpNumberOfStoredRecordsResponse:
		if !s.expects(op) {
			return Outcome{}, s.halt(op, "record count not requested")
		}
		if len(data) < 4 {
			return Outcome{}, s.halt(op, fmt.Sprintf("frame too short: %d bytes", len(data)))
		}
		count := int(binary.LittleEndian.Uint16(data[2:4]))
		s.expected, s.hasExpected = count, true
		s.awaited = OpNone
		if count == 0 {
			s.finish()
			return Outcome{Completed: true}, nil
		}
		s.inFlight = OpReportStoredRecords
		return Outcome{Write: Request(OpReportStoredRecords, OperatorAllRecords)}, nil

	case OpResponseCode:
		if !s.expects(op) {
			return Outcome{}, s.halt(op, "no request awaiting a response")
		}
		if len(data) < 4 {
			return Outcome{}, s.halt(op, fmt.Sprintf("frame too short: %d bytes", len(data)))
		}
		resp := Response{RequestOpcode: Opcode(data[2]), Value: ResponseValue(data[3])}
		s.response = &resp
		s.finish()
		return Outcome{Completed: true, Response: &resp}, nil
	}

	return Outcome{}, s.halt(op, "unexpected opcode")
}

func (s *Session) finish() {
	s.complete = true
	s.state = Idle
	s.inFlight = OpNone
	s.awaited = OpNone
}

// RecordReceived counts a measurement delivered during bulk transfer.
// It reports whether the record was attributed to the procedure.
func (s *Session) RecordReceived() bool {
	if s.complete || s.halted {
		return false
	}
	if s.state == BulkRequested || s.inFlight == OpReportStoredRecords {
		s.received++
		return true
	}
	return false
}

// Fail halts the session without an indication, for example when the
// peripheral has no control point.
func (s *Session) Fail(reason string) {
	s.halted = true
	s.reason = reason
	s.inFlight = OpNone
	s.awaited = OpNone
}

// Status returns a copy of the session state.
func (s *Session) Status() Status {
	st := Status{
		State:    s.state,
		InFlight: s.inFlight,
		Awaited:  s.awaited,
		Received: s.received,
		Complete: s.complete,
		Halted:   s.halted,
		Reason:   s.reason,
	}
	if s.hasExpected {
		n := s.expected
		st.Expected = &n
	}
	if s.response != nil {
		r := *s.response
		st.Response = &r
	}
	return st
}
