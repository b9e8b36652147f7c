package permissions

import "errors"

// ErrMicrophoneDenied is returned when the OS refuses microphone access.
// The first call on macOS shows the system prompt and also returns this
// error; the user grants access and starts listening again.
var ErrMicrophoneDenied = errors.New("microphone access not granted")
