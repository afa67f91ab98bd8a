package hotplug

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/sys/unix"
)

// uevent datagrams are small; the kernel's own limit is well under this.
const datagramSize = 512

/*Listen blocks until a USB add event arrives or stop is closed.

It opens a NETLINK_KOBJECT_UEVENT socket bound to this process and group
-1 (all multicast groups), then reads datagrams until one parses as an
ACTION=add with a PRODUCT attribute.  Unparseable messages are skipped.
The socket read is given a timeout so stop is observed promptly.
*/
func Listen(stop <-chan struct{}) (Event, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return Event{}, fmt.Errorf("opening uevent socket: %w", err)
	}
	defer unix.Close(fd)

	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Pid:    uint32(os.Getpid()),
		Groups: 0xFFFFFFFF,
	}
	if err := unix.Bind(fd, sa); err != nil {
		return Event{}, fmt.Errorf("binding uevent socket: %w", err)
	}

	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return Event{}, fmt.Errorf("setting uevent read timeout: %w", err)
	}

	buf := make([]byte, datagramSize)
	for {
		select {
		case <-stop:
			return Event{}, ErrStopped
		default:
		}
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			return Event{}, fmt.Errorf("reading uevent: %w", err)
		}
		ev, ok := ParseUevent(buf[:n])
		if !ok {
			continue
		}
		log.Printf("uevent: device added %04x:%04x", ev.VID, ev.PID)
		return ev, nil
	}
}
