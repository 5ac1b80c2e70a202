// Package permissions checks OS privacy approvals needed to capture audio.
package permissions

import "errors"

var ErrMicrophone = errors.New("microphone access not granted")

// Status mirrors AVAuthorizationStatus.
type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}
