package soap

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSOAP is returned for requests without a SOAPAction header or a
	// SOAP content type. Such requests are not control requests.
	ErrNotSOAP = errors.New("soap: not a SOAP request")

	// ErrMalformed is returned when the envelope cannot be parsed.
	ErrMalformed = errors.New("soap: malformed envelope")
)

// UPnP control error codes.
const (
	CodeInvalidAction           = 401
	CodeInvalidArgs             = 402
	CodeActionFailed            = 501
	CodeArgumentValueInvalid    = 600
	CodeArgumentValueOutOfRange = 601
	CodeOptionalActionNotImpl   = 602
	CodeOutOfMemory             = 603
	CodeHumanInterventionNeeded = 604
	CodeStringArgumentTooLong   = 605
)

var descriptions = map[int]string{
	CodeInvalidAction:           "Invalid Action",
	CodeInvalidArgs:             "Invalid Args",
	CodeActionFailed:            "Action Failed",
	CodeArgumentValueInvalid:    "Argument Value Invalid",
	CodeArgumentValueOutOfRange: "Argument Value Out of Range",
	CodeOptionalActionNotImpl:   "Optional Action Not Implemented",
	CodeOutOfMemory:             "Out of Memory",
	CodeHumanInterventionNeeded: "Human Intervention Required",
	CodeStringArgumentTooLong:   "String Argument Too Long",
}

// Error is a UPnP control error returned to the caller as a SOAP fault.
type Error struct {
	Code        int
	Description string
}

// NewError returns the error for code with its standard description.
func NewError(code int) *Error {
	return &Error{Code: code, Description: Description(code)}
}

// Description returns the standard text for a UPnP error code.
func Description(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "Action Failed"
}

func (e *Error) Error() string {
	return fmt.Sprintf("soap: UPnP error %d: %s", e.Code, e.Description)
}
