/*Package hotplug surfaces USB attach events.

On Linux the kernel broadcasts uevents over a NETLINK_KOBJECT_UEVENT
datagram socket; each message is a null-separated list of KEY=VALUE
attributes.  Only ACTION=add messages carrying a PRODUCT attribute of the
form vid/pid/... (hex fields) are of interest here.  On other platforms
there is no event source and the caller falls back to polling.
*/
package hotplug

import (
	"errors"
	"strconv"
	"strings"
)

// Event is one device attachment.
type Event struct {
	VID uint16
	PID uint16
}

var (
	// ErrUnsupported is returned by Listen on platforms without a uevent
	// source.
	ErrUnsupported = errors.New("hotplug events are not supported on this platform")

	// ErrStopped is returned by Listen when the stop channel closes before
	// an event arrives.
	ErrStopped = errors.New("hotplug listener stopped")
)

// ParseUevent extracts a device event from one uevent datagram.  Messages
// that are not ACTION=add, lack a PRODUCT attribute, or carry a malformed
// PRODUCT field yield ok == false.
func ParseUevent(data []byte) (ev Event, ok bool) {
	attrs := map[string]string{}
	for _, line := range strings.Split(string(data), "\x00") {
		kv := strings.SplitN(line, "=", 2)
		if len(kv) == 2 {
			attrs[kv[0]] = kv[1]
		}
	}
	if attrs["ACTION"] != "add" {
		return ev, false
	}
	product, found := attrs["PRODUCT"]
	if !found {
		return ev, false
	}
	parts := strings.Split(product, "/")
	if len(parts) < 2 {
		return ev, false
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return ev, false
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return ev, false
	}
	return Event{VID: uint16(vid), PID: uint16(pid)}, true
}
