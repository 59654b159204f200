package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned for frames too short for the fields their
// own header and flags declare.
var ErrMalformedFrame = errors.New("malformed frame")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedFrame}, args...)...)
}

// RemoteError carries the code and message of a server error-response frame.
type RemoteError struct {
	Code    int32
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error %d", e.Code)
	}
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
