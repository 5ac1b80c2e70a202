package audio

import "fmt"

// Resolve returns the first active device of kind whose name equals name
// exactly. Without a match the first enumerated device is returned.
func Resolve(d Driver, kind Kind, name string) (Device, error) {
	devices, err := d.Devices(kind)
	if err != nil {
		return Device{}, fmt.Errorf("enumerate %s devices: %w", kind, err)
	}
	if len(devices) == 0 {
		return Device{}, ErrNoDevice
	}

	for _, dev := range devices {
		if dev.Name == name {
			return dev, nil
		}
	}
	return devices[0], nil
}
