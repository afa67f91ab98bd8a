/*Package accessory owns the runtime of one attached accessory device: the
bulk-IN read loop feeding the frame decoder, the serialized bulk-OUT
command sender, the session multiplexer, and startup/shutdown orchestration.

The runtime is handed an already-claimed device (see package aoa) and runs
until the caller stops it, the peer requests termination, or the USB link
fails.  Reconnecting after that is the enclosing driver's job.
*/
package accessory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/kaoqibutaitou/aoa-port-forward/bytebuf"
	"github.com/kaoqibutaitou/aoa-port-forward/frame"
	"github.com/kaoqibutaitou/aoa-port-forward/mux"
)

const (
	// bulkInSize is the bulk-IN request size.  Generously larger than any
	// single transfer the peer sends so frames split as rarely as possible.
	bulkInSize = 16384

	// ioTimeout bounds one bulk-IN wait so the loop can observe shutdown.
	ioTimeout = time.Second

	// drainDelay gives in-flight transfers time to complete during stop.
	drainDelay = time.Second

	// DefaultPort is forwarded to until the app announces its own.
	DefaultPort = 8000
)

// Device is the bulk transport the runtime drives.  *aoa.Device implements
// it; tests substitute an in-memory pipe.
type Device interface {
	ReadBulk(ctx context.Context, buf []byte) (int, error)
	WriteBulk(b []byte) (int, error)
	Close() error
}

// Info identifies the attached device on the status surface.
type Info interface {
	VendorID() uint16
	ProductID() uint16
}

// Status is a point-in-time snapshot of the runtime for the monitor.
type Status struct {
	Running      bool     `json:"running"`
	AppConnected bool     `json:"app_connected"`
	ForwardPort  uint16   `json:"forward_port"`
	SessionCount int      `json:"session_count"`
	Sessions     []uint16 `json:"sessions,omitempty"`
	VendorID     string   `json:"vendor_id,omitempty"`
	ProductID    string   `json:"product_id,omitempty"`
}

// Accessory is the per-device runtime.
type Accessory struct {
	dev Device
	mux *mux.Mux

	outMu sync.Mutex // serializes bulk-OUT so frames never interleave

	mu           sync.Mutex
	appConnected bool

	stopc  chan struct{} // closed when workers must wind down
	closec chan struct{} // closed when the peer asks us to terminate or bulk-IN fails
	once   sync.Once
	wg     sync.WaitGroup
}

// New assembles a runtime around an open device.  port is forwarded to
// until the app announces its own; pass DefaultPort absent a better idea.
// Start must be called to spawn the worker.
func New(dev Device, port uint16) *Accessory {
	a := &Accessory{
		dev:    dev,
		stopc:  make(chan struct{}),
		closec: make(chan struct{}),
	}
	a.mux = mux.New(a, port)
	return a
}

// Start spawns the USB read worker.
func (a *Accessory) Start() {
	a.wg.Add(1)
	go a.readLoop()
}

// Run starts the worker and blocks until ctx is cancelled, the peer
// requests termination, bulk-IN fails, or Stop is called, then performs the
// full stop sequence.
func (a *Accessory) Run(ctx context.Context) {
	a.Start()
	select {
	case <-ctx.Done():
	case <-a.closec:
	case <-a.stopc:
	}
	a.Stop()
}

/*Stop winds the runtime down: tell the app if it is connected, signal the
workers, give in-flight transfers a moment to drain, tear down every
session, join the workers, and release the device.  Safe to call more than
once; only the first call acts.
*/
func (a *Accessory) Stop() {
	a.once.Do(func() {
		log.Println("stopping accessory")
		a.signalAppExit()
		close(a.stopc)
		time.Sleep(drainDelay)
		a.mux.CloseAll()
		a.wg.Wait()
		if err := a.dev.Close(); err != nil {
			log.Printf("releasing device: %v", err)
		}
	})
}

// signalAppExit sends the termination command the Android side needs to
// exit cleanly, once.
func (a *Accessory) signalAppExit() {
	a.mu.Lock()
	connected := a.appConnected
	a.appConnected = false
	a.mu.Unlock()
	if !connected {
		return
	}
	log.Println("sending termination command to android")
	if err := a.SendCommand(frame.CmdCloseAccessory, nil); err != nil {
		log.Printf("sending close command: %v", err)
	}
}

// readLoop is the USB-IN worker: one bulk read per iteration, each chunk
// handed to the decoder.  Timeouts are recoverable and simply loop; any
// other transfer error is fatal to the runtime.
func (a *Accessory) readLoop() {
	defer a.wg.Done()
	dec := frame.NewDecoder(a.dispatch)
	buf := make([]byte, bulkInSize)
	for {
		select {
		case <-a.stopc:
			return
		default:
		}
		rctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		n, err := a.dev.ReadBulk(rctx, buf)
		cancel()
		if n > 0 {
			dec.Consume(buf[:n])
		}
		if err != nil {
			if isUsbTimeout(err) {
				continue
			}
			select {
			case <-a.stopc:
				return
			default:
			}
			log.Printf("bulk-IN failed, ending runtime: %v", err)
			a.requestClose()
			return
		}
	}
}

// isUsbTimeout reports whether a bulk transfer error is the recoverable
// timeout case (libusb -7, or our own deadline doing the same job).
func isUsbTimeout(err error) bool {
	return errors.Is(err, gousb.ErrorTimeout) ||
		errors.Is(err, gousb.TransferTimedOut) ||
		errors.Is(err, gousb.TransferCancelled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// dispatch routes one decoded frame.  It runs on the USB read worker, so
// all inbound-command mutation of the session table is naturally serial.
func (a *Accessory) dispatch(cmd uint16, payload *bytebuf.Buffer) {
	switch cmd {
	case frame.CmdConnectSocket:
		if id, ok := sessionID(payload); ok {
			a.mux.Connect(id)
		}
	case frame.CmdDisconnectSocket:
		if id, ok := sessionID(payload); ok {
			a.mux.Disconnect(id)
		}
	case frame.CmdDataPacket:
		a.mux.Data(payload)
	case frame.CmdAccessoryConnected:
		if payload == nil || payload.Remaining() < 4 {
			log.Println("accessory-connected frame without a port, dropping")
			return
		}
		port := uint16(payload.GetInt())
		a.mu.Lock()
		a.appConnected = true
		a.mu.Unlock()
		a.mux.SetPort(port)
		log.Printf("app connected, forwarding port %d", port)
	case frame.CmdCloseAccessory:
		log.Println("close accessory request received")
		a.requestClose()
	default:
		log.Printf("unknown command %#04x, dropping", cmd)
	}
}

// sessionID pulls the u16 session id off a payload, logging malformed
// frames.  None should be reachable from a well-formed peer.
func sessionID(payload *bytebuf.Buffer) (uint16, bool) {
	if payload == nil || payload.Remaining() < 2 {
		log.Println("command without a session id, dropping")
		return 0, false
	}
	return payload.GetShort(), true
}

// requestClose asks the owner (blocked in Run) to perform the stop
// sequence.  Workers never call Stop themselves; Stop joins them.
func (a *Accessory) requestClose() {
	select {
	case <-a.closec:
	default:
		close(a.closec)
	}
}

// SendFrame transmits one pre-encoded frame as a single bulk-OUT transfer.
// Concurrent callers (the USB worker replying to commands and the session
// readers forwarding data) are serialized here so frames never interleave
// on the wire.
func (a *Accessory) SendFrame(b []byte) error {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	n, err := a.dev.WriteBulk(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short bulk-OUT: wrote %d of %d bytes", n, len(b))
	}
	return nil
}

// SendCommand encodes and sends a frame with an optional raw payload.
func (a *Accessory) SendCommand(cmd uint16, data []byte) error {
	return a.SendFrame(frame.Encode(cmd, data))
}

// SendCommandU16 encodes and sends a frame whose payload is one big-endian
// uint16.
func (a *Accessory) SendCommandU16(cmd, v uint16) error {
	return a.SendFrame(frame.EncodeU16(cmd, v))
}

// Status reports the runtime state for the monitor surface.
func (a *Accessory) Status() Status {
	a.mu.Lock()
	connected := a.appConnected
	a.mu.Unlock()

	running := true
	select {
	case <-a.stopc:
		running = false
	default:
	}

	st := Status{
		Running:      running,
		AppConnected: connected,
		ForwardPort:  a.mux.Port(),
		SessionCount: a.mux.Len(),
		Sessions:     a.mux.Sessions(),
	}
	if info, ok := a.dev.(Info); ok {
		st.VendorID = fmt.Sprintf("%04x", info.VendorID())
		st.ProductID = fmt.Sprintf("%04x", info.ProductID())
	}
	return st
}
