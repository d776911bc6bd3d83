package racp

// Status is an immutable snapshot of a Session.
type Status struct {
	State    State     `json:"state"`
	InFlight Opcode    `json:"in_flight"`
	Awaited  Opcode    `json:"awaited"`
	Expected *int      `json:"expected,omitempty"`
	Received int       `json:"received"`
	Complete bool      `json:"complete"`
	Halted   bool      `json:"halted"`
	Reason   string    `json:"reason,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// Result classifies how a procedure ended.
type Result string

const (
	ResultPending    Result = "pending"
	ResultSuccess    Result = "success"
	ResultEmpty      Result = "empty"
	ResultIncomplete Result = "incomplete"
	ResultRejected   Result = "rejected"
	ResultHalted     Result = "halted"
)

// Outcome classifies the terminal result. Every response value ends the
// procedure; the classification only affects how it is reported.
func (s Status) Outcome() Result {
	switch {
	case s.Halted:
		return ResultHalted
	case !s.Complete:
		return ResultPending
	case s.Response == nil:
		// Completed from the record count alone.
		return ResultEmpty
	}

	switch s.Response.Value {
	case ResponseSuccess:
		return ResultSuccess
	case ResponseNoRecordsFound:
		return ResultEmpty
	case ResponseProcedureNotCompleted:
		return ResultIncomplete
	default:
		return ResultRejected
	}
}
