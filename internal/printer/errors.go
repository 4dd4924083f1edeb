package printer

import "errors"

// Errors a print job can end with. Vendor errors are translated into these
// before they leave a driver.
var (
	ErrInvalidImage     = errors.New("printer: invalid image")
	ErrConnection       = errors.New("printer: connection failed")
	ErrPermission       = errors.New("printer: permission denied")
	ErrOffline          = errors.New("printer: offline")
	ErrCoverOpen        = errors.New("printer: cover open")
	ErrPaperEmpty       = errors.New("printer: paper empty")
	ErrPaperJam         = errors.New("printer: paper jam")
	ErrUnsupportedModel = errors.New("printer: unsupported model")
	ErrUnknown          = errors.New("printer: unknown error")
)

// ErrValidation is returned by ConnectManually for bad input.
var ErrValidation = errors.New("printer: invalid connection input")
