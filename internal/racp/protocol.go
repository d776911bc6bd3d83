// Package racp implements the client side of the Record Access Control Point
// procedure used to bulk-retrieve stored health records.
//
// Session is a pure state machine: it produces the bytes to write and consumes
// write results and indications, leaving all I/O to the caller.
package racp

import "fmt"

// Opcode is an RACP op code (first byte of every control point frame).
type Opcode byte

const (
	OpNone                          Opcode = 0x00
	OpReportStoredRecords           Opcode = 0x01
	OpDeleteStoredRecords           Opcode = 0x02
	OpAbort                         Opcode = 0x03
	OpReportNumberOfStoredRecords   Opcode = 0x04
	OpNumberOfStoredRecordsResponse Opcode = 0x05
	OpResponseCode                  Opcode = 0x06
)

func (o Opcode) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpReportStoredRecords:
		return "report stored records"
	case OpDeleteStoredRecords:
		return "delete stored records"
	case OpAbort:
		return "abort operation"
	case OpReportNumberOfStoredRecords:
		return "report number of stored records"
	case OpNumberOfStoredRecordsResponse:
		return "number of stored records response"
	case OpResponseCode:
		return "response code"
	default:
		return fmt.Sprintf("opcode 0x%02X", byte(o))
	}
}

// Operator qualifies which records a request applies to.
type Operator byte

const (
	OperatorNull       Operator = 0x00
	OperatorAllRecords Operator = 0x01
)

// ResponseValue is the result carried by a RESPONSE_CODE indication.
type ResponseValue byte

const (
	ResponseSuccess               ResponseValue = 0x01
	ResponseOpCodeNotSupported    ResponseValue = 0x02
	ResponseInvalidOperator       ResponseValue = 0x03
	ResponseOperatorNotSupported  ResponseValue = 0x04
	ResponseInvalidOperand        ResponseValue = 0x05
	ResponseNoRecordsFound        ResponseValue = 0x06
	ResponseAbortUnsuccessful     ResponseValue = 0x07
	ResponseProcedureNotCompleted ResponseValue = 0x08
	ResponseOperandNotSupported   ResponseValue = 0x09
)

var responseValueNames = map[ResponseValue]string{
	ResponseSuccess:               "success",
	ResponseOpCodeNotSupported:    "op code not supported",
	ResponseInvalidOperator:       "invalid operator",
	ResponseOperatorNotSupported:  "operator not supported",
	ResponseInvalidOperand:        "invalid operand",
	ResponseNoRecordsFound:        "no records found",
	ResponseAbortUnsuccessful:     "abort unsuccessful",
	ResponseProcedureNotCompleted: "procedure not completed",
	ResponseOperandNotSupported:   "operand not supported",
}

func (v ResponseValue) String() string {
	if name, ok := responseValueNames[v]; ok {
		return name
	}
	return fmt.Sprintf("response 0x%02X", byte(v))
}

// Request encodes a control point request frame.
func Request(op Opcode, operator Operator) []byte {
	return []byte{byte(op), byte(operator)}
}

// Response is a decoded RESPONSE_CODE indication.
type Response struct {
	RequestOpcode Opcode
	Value         ResponseValue
}

func (r Response) String() string {
	return fmt.Sprintf("%s: %s", r.RequestOpcode, r.Value)
}
