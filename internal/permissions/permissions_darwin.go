//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "fmt"

// CheckMicrophone returns the current microphone permission status
func CheckMicrophone() Status {
	return Status(C.checkMicrophonePermission())
}

// RequestMicrophone triggers the system microphone permission dialog
func RequestMicrophone() {
	C.requestMicrophonePermission()
}

// EnsurePermissions checks microphone access and asks for it when undecided.
// Carbon hotkeys do not need accessibility approval.
func EnsurePermissions() error {
	switch status := CheckMicrophone(); status {
	case Authorized:
		return nil
	case NotDetermined:
		RequestMicrophone()
		return fmt.Errorf("microphone permission requested, restart after granting: %w", ErrMicrophone)
	default:
		return fmt.Errorf("microphone permission %s, enable it in System Settings → Privacy & Security → Microphone: %w", status, ErrMicrophone)
	}
}
