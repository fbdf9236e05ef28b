package dicomweb

import (
	"errors"
	"fmt"
)

// Response pairs an HTTP status code with a decoded payload. A non-2xx
// status is never converted into an error by the client; callers must
// inspect StatusCode themselves.
type Response[T any] struct {
	StatusCode int
	Payload    T
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response[T]) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrNoMatchingFiles is returned by Store when none of the supplied
// datasets match the target study instance UID. No HTTP request is
// issued in that case.
var ErrNoMatchingFiles = errors.New("no matching DICOM files found or study instance UIDs do not match")

// ClientError wraps a transport-level DICOMweb failure. StatusCode is
// zero when the request never produced a response.
type ClientError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dicomweb: %s (status %d)", e.Message, e.StatusCode)
	}
	return "dicomweb: " + e.Message
}

func (e *ClientError) Unwrap() error { return e.Err }
