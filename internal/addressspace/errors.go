package addressspace

import (
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

// Error is a failed node operation together with the status code a server reports for it.
type Error struct {
	Code ua.StatusCode
	Text string
}

func (e *Error) Error() string { return e.Text }

var (
	ErrTypeMismatch        = &Error{Code: ua.BadTypeMismatch, Text: "value does not match the data type"}
	ErrInvalidOperation    = &Error{Code: ua.BadNodeClassInvalid, Text: "operation not valid for the node class"}
	ErrInvalidAttribute    = &Error{Code: ua.BadAttributeIDInvalid, Text: "attribute not valid for the node class"}
	ErrNotWritable         = &Error{Code: ua.BadNotWritable, Text: "attribute is not writable"}
	ErrAlreadyParented     = &Error{Code: ua.BadInvalidArgument, Text: "node already has a parent"}
	ErrNotChild            = &Error{Code: ua.BadNoMatch, Text: "node is not a child"}
	ErrDuplicateBrowseName = &Error{Code: ua.BadBrowseNameInvalid, Text: "browse name already used by a sibling"}
)

// StatusCode maps err to the OPC UA status code reported for it.
func StatusCode(err error) ua.StatusCode {
	if err == nil {
		return ua.Good
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ua.BadInternalError
}
