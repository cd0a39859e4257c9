package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Protocol limits
const (
	MaxLineLength    = 4096             // Longest line a peer may send
	HandshakeTimeout = 10 * time.Second // Time allowed for the HELLO line
	WriteTimeout     = 5 * time.Second  // Per-line write deadline
)

var errLineTooLong = errors.New("line too long")

// Peer is one connected relay client
type Peer struct {
	ID     string
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	hub    *Hub
	mu     sync.Mutex // protects writer
}

// NewPeer performs the HELLO handshake on conn and joins hub.
// On any failure the connection is closed.
func NewPeer(conn net.Conn, hub *Hub) (*Peer, error) {
	p := &Peer{
		ID:     uuid.NewString(),
		conn:   conn,
		reader: bufio.NewReaderSize(conn, MaxLineLength+2),
		writer: bufio.NewWriter(conn),
		hub:    hub,
	}

	if err := p.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Peer) handshake() error {
	p.conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	defer p.conn.SetReadDeadline(time.Time{})

	line, err := p.readLine()
	if err != nil {
		p.send("ERR protocol")
		return fmt.Errorf("failed to read hello: %w", err)
	}

	cmd, password, _ := strings.Cut(line, " ")
	if cmd != "HELLO" {
		p.send("ERR protocol")
		return fmt.Errorf("unexpected hello %q", cmd)
	}

	if err := p.hub.Join(p, password); err != nil {
		reason := "protocol"
		switch {
		case errors.Is(err, ErrRelayFull):
			reason = "full"
		case errors.Is(err, ErrBadPassword):
			reason = "password"
		}
		p.send("ERR " + reason)
		return fmt.Errorf("join rejected: %w", err)
	}

	if err := p.send("OK " + p.ID); err != nil {
		p.hub.Leave(p)
		return fmt.Errorf("failed to acknowledge join: %w", err)
	}
	return nil
}

// Handle relays the peer's lines until it quits, disconnects or ctx ends
func (p *Peer) Handle(ctx context.Context) {
	defer p.close()
	defer p.hub.Leave(p)

	stop := context.AfterFunc(ctx, func() { p.conn.Close() })
	defer stop()

	for {
		line, err := p.readLine()
		switch {
		case errors.Is(err, errLineTooLong):
			p.send("ERR too long")
			continue
		case err == io.EOF:
			log.WithField("peer", p.ID).Debug("Peer disconnected")
			return
		case err != nil:
			if ctx.Err() == nil {
				log.WithField("peer", p.ID).Warnf("Read error: %v", err)
			}
			return
		}

		if line == "" {
			continue
		}
		if line == "QUIT" {
			p.send("BYE")
			return
		}
		p.hub.Relay(Message{From: p.ID, Payload: line})
	}
}

// readLine returns one line without its terminator. Lines longer than
// MaxLineLength are discarded up to the next newline.
func (p *Peer) readLine() (string, error) {
	data, err := p.reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = p.reader.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return "", errLineTooLong
	}
	if err != nil {
		if err == io.EOF && len(data) > 0 {
			return strings.TrimRight(string(data), "\r\n"), nil
		}
		return "", err
	}

	line := strings.TrimRight(string(data), "\r\n")
	if len(line) > MaxLineLength {
		return "", errLineTooLong
	}
	return line, nil
}

// send writes one line to the peer
func (p *Peer) send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if _, err := p.writer.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("error writing line: %w", err)
	}
	if err := p.writer.Flush(); err != nil {
		return fmt.Errorf("error flushing line: %w", err)
	}
	return nil
}

func (p *Peer) close() {
	p.conn.Close()
}
