package frame

import (
	"github.com/kaoqibutaitou/aoa-port-forward/bytebuf"
)

// Handler receives one complete frame.  payload is nil for zero-length
// payloads.  The buffer is only valid for the duration of the call: it
// aliases either the inbound chunk or the decoder's reassembly buffer.
type Handler func(cmd uint16, payload *bytebuf.Buffer)

type decodeState int

const (
	// stateIdle: ready to consume a header.
	stateIdle decodeState = iota
	// stateSplitHeader: 1..3 header bytes are stashed from a prior chunk.
	stateSplitHeader
	// stateSplitPayload: header parsed, payload incomplete.
	stateSplitPayload
)

// Decoder reassembles frames from arbitrarily sized bulk-IN chunks.  It is
// driven synchronously by the USB read loop and never blocks; after any
// Consume call every byte seen so far is either dispatched or held in
// exactly one of the two split accumulators.
//
// A Decoder is not safe for concurrent use; the single reader loop owns it.
type Decoder struct {
	handler Handler

	state decodeState
	cmd   uint16
	size  int

	header  *bytebuf.Buffer
	payload *bytebuf.Buffer
}

// NewDecoder returns a decoder that invokes h for each completed frame.
func NewDecoder(h Handler) *Decoder {
	return &Decoder{
		handler: h,
		header:  bytebuf.Allocate(HeaderSize),
		payload: bytebuf.Allocate(MaxPayload),
	}
}

// Consume processes one bulk-IN chunk.  Frames completed by this chunk are
// dispatched in wire order before Consume returns.
func (d *Decoder) Consume(chunk []byte) {
	data := bytebuf.Wrap(chunk)
	for {
		switch d.state {
		case stateSplitHeader:
			d.header.Fill(data)
			if d.header.HasRemaining() {
				// chunk exhausted before the header completed
				return
			}
			d.header.Flip()
			d.cmd = d.header.GetShort()
			d.size = int(d.header.GetShort())
			d.header.Clear()
			d.state = stateIdle

		case stateSplitPayload:
			d.payload.Fill(data)
			if d.payload.HasRemaining() {
				return
			}
			d.payload.Flip()
			d.handler(d.cmd, d.payload)
			d.payload.Clear()
			d.state = stateIdle
			continue

		default:
			if data.Remaining() < HeaderSize {
				if data.HasRemaining() {
					d.header.Put(data)
					d.state = stateSplitHeader
				}
				return
			}
			d.cmd = data.GetShort()
			d.size = int(data.GetShort())
		}

		// header acquired by either path; place the payload
		switch {
		case d.size == 0:
			d.handler(d.cmd, nil)
		case d.size <= data.Remaining():
			view := data.Duplicate()
			view.SetLimit(view.Position() + d.size)
			d.handler(d.cmd, view)
			data.SetPosition(data.Position() + d.size)
		default:
			d.payload.Clear()
			d.payload.Put(data)
			d.payload.SetLimit(d.size)
			d.state = stateSplitPayload
			return
		}
	}
}
