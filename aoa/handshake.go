package aoa

import (
	"encoding/binary"
	"fmt"
	"log"
	"runtime"

	"github.com/google/gousb"
)

const (
	rtVendorIn  = gousb.ControlIn | gousb.ControlVendor | gousb.ControlDevice
	rtVendorOut = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice
)

/*handshake drives the AOA control-transfer sequence on the default
endpoint:

 1. read the ADK protocol version (request 51, little-endian u16)
 2. send the six identity strings (request 52, wIndex 0..5)
 3. enable two-channel audio when the device speaks ADK 2 and the host is
    Linux (request 58)
 4. start accessory mode (request 53)

After step 4 the device drops off the bus and re-enumerates; the caller
re-locates it.
*/
func handshake(dev *gousb.Device, id Identity) error {
	buf := make([]byte, 2)
	n, err := dev.Control(rtVendorIn, reqGetProtocol, 0, 0, buf)
	if err != nil {
		return fmt.Errorf("reading ADK protocol version: %w", err)
	}
	if n != 2 {
		return fmt.Errorf("ADK protocol version read returned %d bytes, want 2", n)
	}
	adkVer := binary.LittleEndian.Uint16(buf)
	log.Printf("ADK protocol version %d", adkVer)

	for i, s := range id.strings() {
		b := []byte(s)
		n, err := dev.Control(rtVendorOut, reqSendString, 0, uint16(i), b)
		if err != nil {
			return fmt.Errorf("sending identity string %d: %w", i, err)
		}
		if n != len(b) {
			return fmt.Errorf("identity string %d: transferred %d of %d bytes", i, n, len(b))
		}
	}

	if adkVer == 2 && runtime.GOOS == "linux" {
		if _, err := dev.Control(rtVendorOut, reqEnableAudio, 1, 0, nil); err != nil {
			return fmt.Errorf("enabling 2-channel audio: %w", err)
		}
	}

	if _, err := dev.Control(rtVendorOut, reqStartAccessory, 0, 0, nil); err != nil {
		return fmt.Errorf("starting accessory mode: %w", err)
	}
	return nil
}
