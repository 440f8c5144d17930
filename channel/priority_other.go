//go:build !linux

package channel

func raiseThreadPriority() error {
	return nil
}
