//go:build !linux && !darwin

package hotkey

// New reports ErrUnsupported; the tray menu still toggles listening.
func New() (Manager, error) {
	return nil, ErrUnsupported
}
