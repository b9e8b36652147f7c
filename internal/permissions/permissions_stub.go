//go:build !darwin

package permissions

// Microphone always succeeds; device errors surface when the stream opens.
func Microphone() error {
	return nil
}

// Accessibility is always granted outside macOS.
func Accessibility(prompt bool) bool {
	return true
}
