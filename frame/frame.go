/*Package frame implements the length-prefixed framing carried over the
accessory's bulk endpoints.

A frame on the wire is

	command[2] || size[2, big-endian] || payload[size]

Frames are never padded or aligned and may straddle any number of bulk
transfers in either direction; Decoder reassembles them across arbitrary
chunk boundaries.  The command tags are opaque to the codec, which compares
them only for equality.
*/
package frame

import "encoding/binary"

// Command tags.  The Android peer and the host agree on these out of band;
// the codec itself attaches no meaning to the values.
const (
	// CmdConnectSocket asks the host to open a loopback TCP connection for
	// a session.  Payload: session id (u16).
	CmdConnectSocket uint16 = 0x0101

	// CmdDisconnectSocket closes a session.  Sent in both directions.
	// Payload: session id (u16).
	CmdDisconnectSocket uint16 = 0x0102

	// CmdDataPacket carries session bytes.  Payload: session id (u16)
	// followed by the data.
	CmdDataPacket uint16 = 0x0103

	// CmdConnectionResp answers CmdConnectSocket.  Payload: session id
	// (u16) then status (u16); 1 is success, 0 is failure.
	CmdConnectionResp uint16 = 0x0104

	// CmdAccessoryConnected announces the app and its forward port.
	// Payload: port (u32, big-endian).
	CmdAccessoryConnected uint16 = 0x0105

	// CmdCloseAccessory requests graceful termination.  No payload.
	CmdCloseAccessory uint16 = 0x0106
)

// HeaderSize is the fixed frame header length: command plus payload size.
const HeaderSize = 4

// MaxPayload is the largest payload a frame can carry.
const MaxPayload = 0xFFFF

// Encode serializes a frame.  A nil or empty payload produces a bare
// four-byte header.  Panics if the payload exceeds MaxPayload; the callers
// in this repo construct payloads well under it.
func Encode(cmd uint16, payload []byte) []byte {
	if len(payload) > MaxPayload {
		panic("frame: payload exceeds 65535 bytes")
	}
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(out[0:2], cmd)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// EncodeU16 serializes a frame whose payload is a single big-endian uint16,
// the common shape for session-id commands.
func EncodeU16(cmd, v uint16) []byte {
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], v)
	return Encode(cmd, p[:])
}
