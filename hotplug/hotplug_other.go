//go:build !linux

package hotplug

// Listen has no event source off Linux; callers fall back to polling.
func Listen(stop <-chan struct{}) (Event, error) {
	return Event{}, ErrUnsupported
}
