/*Package mux maintains the many-to-one mapping from 16-bit session IDs to
loopback TCP connections.

The Android peer opens and closes sessions with connect/disconnect commands
and carries bytes in data-packet frames; the mux proxies each session to a
fresh TCP connection against the configured forward port.  Each live
session has one reader goroutine that blocks in Read and turns socket bytes
into outbound data-packet frames; closing the connection is what stops it.
Bytes within a session are FIFO per direction.

All mutation of the session table happens under one mutex, so session
removal and socket close are atomic with respect to every other operation.
*/
package mux

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/kaoqibutaitou/aoa-port-forward/bytebuf"
	"github.com/kaoqibutaitou/aoa-port-forward/frame"
)

const (
	// scratchSize fixes the per-session outbound scratch buffer.  With the
	// six-byte frame prologue this caps one data frame at 8186 socket
	// bytes; larger reads segment naturally across iterations.  The peer
	// tolerates anything up to 64 KiB - 7, so this is a tunable, not a
	// protocol constant.
	scratchSize = 8192

	// prologueSize is command(2) + length(2) + session id(2).
	prologueSize = 6

	dialTimeout = 3 * time.Second
)

// Sender transmits one pre-encoded frame as a single bulk-OUT transfer.
// The accessory runtime implements it and serializes concurrent calls.
type Sender interface {
	SendFrame(b []byte) error
}

type session struct {
	id   uint16
	conn net.Conn
}

// Mux is the session table and its command handlers.
type Mux struct {
	mu       sync.Mutex
	sessions map[uint16]*session
	port     uint16
	sender   Sender
	wg       sync.WaitGroup
}

// New returns a mux forwarding to localhost:port, replying through sender.
func New(sender Sender, port uint16) *Mux {
	return &Mux{
		sessions: make(map[uint16]*session),
		port:     port,
		sender:   sender,
	}
}

// SetPort retargets future connects.  Live sessions are unaffected.
func (m *Mux) SetPort(p uint16) {
	m.mu.Lock()
	m.port = p
	m.mu.Unlock()
}

// Port returns the current forward port.
func (m *Mux) Port() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port
}

// Len returns the number of live sessions.
func (m *Mux) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions returns the live session IDs, for the status surface.
func (m *Mux) Sessions() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint16, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

/*Connect services CMD_CONNECT_SOCKET: dial localhost:port, insert the
session, start its reader, and answer with CMD_CONNECTION_RESP carrying
status 1.  A dial failure answers status 0 and inserts nothing.

If the peer reuses a live ID the stale session is torn down first, so at
most one session per ID ever exists.
*/
func (m *Mux) Connect(id uint16) {
	port := m.Port()
	log.Printf("connecting session %d to port %d", id, port)
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), dialTimeout)
	if err != nil {
		log.Printf("session %d: connect failed: %v", id, err)
		m.respond(id, 0)
		return
	}

	m.mu.Lock()
	if stale, ok := m.sessions[id]; ok {
		stale.conn.Close()
	}
	s := &session{id: id, conn: conn}
	m.sessions[id] = s
	m.wg.Add(1)
	go m.readLoop(s)
	m.mu.Unlock()

	m.respond(id, 1)
}

func (m *Mux) respond(id, status uint16) {
	var p [4]byte
	binary.BigEndian.PutUint16(p[0:2], id)
	binary.BigEndian.PutUint16(p[2:4], status)
	if err := m.sender.SendFrame(frame.Encode(frame.CmdConnectionResp, p[:])); err != nil {
		log.Printf("session %d: sending connection response: %v", id, err)
	}
}

// Disconnect services CMD_DISCONNECT_SOCKET and local teardown.  Removing
// the table entry and closing the socket happen in one critical section;
// the close also stops the session's reader.  Unknown IDs are a no-op.
func (m *Mux) Disconnect(id uint16) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		s.conn.Close()
	}
	m.mu.Unlock()
	if ok {
		log.Printf("disconnected session %d", id)
	}
}

// Data services CMD_DATA_PACKET: the first two payload bytes are the
// session ID, the rest is written to its socket.  A write failure means
// the socket is broken: the session is disconnected locally and the peer
// is told.  Unknown IDs drop the payload.
func (m *Mux) Data(payload *bytebuf.Buffer) {
	if payload == nil || payload.Remaining() < 2 {
		log.Println("data packet without a session id, dropping")
		return
	}
	id := payload.GetShort()

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		log.Printf("data for unknown session %d, dropping", id)
		return
	}

	// net.Conn.Write retries internally until drained or failed
	if _, err := s.conn.Write(payload.Bytes()); err != nil {
		log.Printf("session %d: write failed: %v", id, err)
		m.Disconnect(id)
		m.notifyDisconnect(id)
	}
}

func (m *Mux) notifyDisconnect(id uint16) {
	if err := m.sender.SendFrame(frame.EncodeU16(frame.CmdDisconnectSocket, id)); err != nil {
		log.Printf("session %d: notifying disconnect: %v", id, err)
	}
}

/*readLoop pumps one session's socket into data-packet frames.

The scratch buffer is laid out as one frame: the prologue occupies the
first six bytes and each Read lands directly after it, so a full frame is
transmitted with a single bulk-OUT and no copying.  EOF (including the
zero-byte read a closed peer produces) disconnects the session locally and
notifies the Android side; a close initiated by Disconnect just ends the
loop.
*/
func (m *Mux) readLoop(s *session) {
	defer m.wg.Done()

	buf := make([]byte, scratchSize)
	binary.BigEndian.PutUint16(buf[0:2], frame.CmdDataPacket)
	binary.BigEndian.PutUint16(buf[4:6], s.id)

	for {
		n, err := s.conn.Read(buf[prologueSize:])
		if n > 0 {
			binary.BigEndian.PutUint16(buf[2:4], uint16(n+2))
			if serr := m.sender.SendFrame(buf[:prologueSize+n]); serr != nil {
				log.Printf("session %d: forwarding %d bytes: %v", s.id, n, serr)
			}
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// closed on our side; teardown already happened
				return
			}
			if errors.Is(err, io.EOF) {
				log.Printf("session %d: peer closed", s.id)
			} else {
				log.Printf("session %d: read failed: %v", s.id, err)
			}
			m.Disconnect(s.id)
			m.notifyDisconnect(s.id)
			return
		}
	}
}

// CloseAll tears down every session and waits for their readers to exit.
// Used during runtime shutdown; no disconnect commands are sent, the close
// command already covers the peer.
func (m *Mux) CloseAll() {
	m.mu.Lock()
	for id, s := range m.sessions {
		s.conn.Close()
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
