package server

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/a-bouts/regatta-server/packet"
)

// transport carries AC35 packets over a raw socket or a WebSocket.
type transport interface {
	Read() (packet.Header, packet.Message, error)
	Write(b []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
	String() string
}

type tcpTransport struct {
	conn net.Conn
	r    *packet.Reader
}

func newTCPTransport(conn net.Conn, br *bufio.Reader) *tcpTransport {
	if br == nil {
		br = bufio.NewReader(conn)
	}
	return &tcpTransport{conn: conn, r: packet.NewReader(br)}
}

func (t *tcpTransport) Read() (packet.Header, packet.Message, error) {
	return t.r.Read()
}

func (t *tcpTransport) Write(b []byte, deadline time.Time) error {
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := t.conn.Write(b)
	return err
}

func (t *tcpTransport) SetReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) String() string {
	return "tcp " + t.conn.RemoteAddr().String()
}

// wsStream joins the binary messages of a WebSocket into one byte stream,
// packets may span messages.
type wsStream struct {
	conn *websocket.Conn
	r    io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			s.r = r
		}
		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

type wsTransport struct {
	conn *websocket.Conn
	r    *packet.Reader
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn, r: packet.NewReader(&wsStream{conn: conn})}
}

func (t *wsTransport) Read() (packet.Header, packet.Message, error) {
	return t.r.Read()
}

func (t *wsTransport) Write(b []byte, deadline time.Time) error {
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (t *wsTransport) SetReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) String() string {
	return "ws " + t.conn.RemoteAddr().String()
}
