package blow

import (
	"errors"

	"github.com/petems/birthday-tray/internal/audio"
)

// FailureKind tells the user-facing layer why listening could not start
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailurePermissionDenied
	FailureDeviceUnavailable
	FailureUnsupported
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailurePermissionDenied:
		return "permission_denied"
	case FailureDeviceUnavailable:
		return "device_unavailable"
	case FailureUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// KindOf classifies a Start error. Errors that match no known cause count
// as an unavailable device, since the fallback is the same.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, audio.ErrPermissionDenied):
		return FailurePermissionDenied
	case errors.Is(err, audio.ErrUnsupported):
		return FailureUnsupported
	default:
		return FailureDeviceUnavailable
	}
}
