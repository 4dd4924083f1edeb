package printer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/thereceipt/thermal-bridge/internal/capability"
	"github.com/thereceipt/thermal-bridge/internal/device"
	"github.com/thereceipt/thermal-bridge/internal/renderer"
)

// Result is the outcome of one print job.
type Result int

const (
	Success Result = iota
	ErrorInvalidImage
	ErrorConnection
	ErrorPermission
	ErrorOffline
	ErrorCoverOpen
	ErrorPaperEmpty
	ErrorPaperJam
	// ErrorUnsupportedModel is reported as ErrorUnknown by Code, but keeps
	// its own message.
	ErrorUnsupportedModel
	ErrorUnknown
)

var resultNames = map[Result]string{
	Success:               "Success",
	ErrorInvalidImage:     "ErrorInvalidImage",
	ErrorConnection:       "ErrorConnection",
	ErrorPermission:       "ErrorPermission",
	ErrorOffline:          "ErrorOffline",
	ErrorCoverOpen:        "ErrorCoverOpen",
	ErrorPaperEmpty:       "ErrorPaperEmpty",
	ErrorPaperJam:         "ErrorPaperJam",
	ErrorUnsupportedModel: "ErrorUnsupportedModel",
	ErrorUnknown:          "ErrorUnknown",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Code folds the results callers cannot act on differently into
// ErrorUnknown.
func (r Result) Code() Result {
	if r == ErrorUnsupportedModel {
		return ErrorUnknown
	}
	if _, ok := resultNames[r]; !ok {
		return ErrorUnknown
	}
	return r
}

// OK reports whether the job printed.
func (r Result) OK() bool { return r == Success }

// Message is the user facing description of a failed result.
func (r Result) Message() string {
	switch r {
	case Success:
		return ""
	case ErrorInvalidImage:
		return "Invalid image data"
	case ErrorConnection:
		return "Failed to open printer port"
	case ErrorPermission:
		return "Permission to access the printer was denied"
	case ErrorOffline:
		return "Printer is offline"
	case ErrorCoverOpen:
		return "Printer cover is open"
	case ErrorPaperEmpty:
		return "Printer is out of paper"
	case ErrorPaperJam:
		return "Paper jam"
	case ErrorUnsupportedModel:
		return "Printer model is not supported"
	default:
		return "Unknown error occurred"
	}
}

// Err returns the sentinel error of r, or nil for Success.
func (r Result) Err() error {
	switch r {
	case Success:
		return nil
	case ErrorInvalidImage:
		return ErrInvalidImage
	case ErrorConnection:
		return ErrConnection
	case ErrorPermission:
		return ErrPermission
	case ErrorOffline:
		return ErrOffline
	case ErrorCoverOpen:
		return ErrCoverOpen
	case ErrorPaperEmpty:
		return ErrPaperEmpty
	case ErrorPaperJam:
		return ErrPaperJam
	case ErrorUnsupportedModel:
		return ErrUnsupportedModel
	default:
		return ErrUnknown
	}
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for res, name := range resultNames {
		if name == s {
			*r = res
			return nil
		}
	}
	return fmt.Errorf("unknown print result %q", s)
}

// ResultFromError maps an error chain to a Result. Nil is Success.
func ResultFromError(err error) Result {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrInvalidImage), errors.Is(err, renderer.ErrInvalidImage):
		return ErrorInvalidImage
	case errors.Is(err, ErrUnsupportedModel), errors.Is(err, capability.ErrNotFound):
		return ErrorUnsupportedModel
	case errors.Is(err, ErrPermission):
		return ErrorPermission
	case errors.Is(err, ErrConnection):
		return ErrorConnection
	case errors.Is(err, ErrOffline):
		return ErrorOffline
	case errors.Is(err, ErrCoverOpen):
		return ErrorCoverOpen
	case errors.Is(err, ErrPaperEmpty):
		return ErrorPaperEmpty
	case errors.Is(err, ErrPaperJam):
		return ErrorPaperJam
	default:
		return ErrorUnknown
	}
}

// statusResult maps a printer status report to a Result. The first fault
// found wins.
func statusResult(s device.Status) Result {
	switch {
	case s.CoverOpen:
		return ErrorCoverOpen
	case s.PaperEmpty:
		return ErrorPaperEmpty
	case s.PaperJam:
		return ErrorPaperJam
	case s.Offline:
		return ErrorOffline
	case s.Unrecoverable:
		return ErrorUnknown
	}
	return Success
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
