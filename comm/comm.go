/*Package comm provides raw TCP socket communication with lab hardware.

Instruments that sit behind a LAN-GPIB gateway or expose a SCPI port
(conventionally 5025) are addressed as TCPIP0::<host>::<port>::SOCKET.
SocketTransport serves those resources to a visa.ResourceManager:

	rm := visa.NewResourceManager(&comm.SocketTransport{
		Resources: []string{"TCPIP0::192.168.100.12::5025::SOCKET"},
		Timeout:   3 * time.Second,
	})

Every exchange appends the Tx terminator to the command and reads the reply up
to the Rx terminator, which is stripped.  The connection is held open for the
life of the session.
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nasa-jpl/specsweep/visa"
)

var (
	// ErrNotConnected is generated when the conn is nil and Send or Recv is called.
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// DefaultTimeout is used when a transport does not specify one
const DefaultTimeout = 3 * time.Second

// Terminators holds the transmission and receipt termination bytes
type Terminators struct {
	Tx byte
	Rx byte
}

// DefaultTerminators are a newline in each direction
var DefaultTerminators = Terminators{Tx: '\n', Rx: '\n'}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// Socket is a visa.Conn over one held-open TCP connection
type Socket struct {
	Addr    string
	Timeout time.Duration
	Term    Terminators

	conn net.Conn
	rd   *bufio.Reader
}

// NewSocket dials addr (host:port) and returns a ready Socket
func NewSocket(addr string, timeout time.Duration, term Terminators) (*Socket, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := TCPSetup(addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Socket{Addr: addr, Timeout: timeout, Term: term, conn: conn, rd: bufio.NewReader(conn)}, nil
}

// Send writes data to the remote after appending the Tx terminator
func (s *Socket) Send(b []byte) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.Timeout))
	b = append(b, s.Term.Tx)
	_, err := s.conn.Write(b)
	return err
}

// Recv receives data from the remote and strips the Rx terminator
func (s *Socket) Recv() ([]byte, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	s.conn.SetReadDeadline(time.Now().Add(s.Timeout))
	buf, err := s.rd.ReadBytes(s.Term.Rx)
	if err != nil {
		return buf, err
	}
	if !bytes.HasSuffix(buf, []byte{s.Term.Rx}) {
		return buf, ErrTerminatorNotFound
	}
	return buf[:len(buf)-1], nil
}

// Write sends a command
func (s *Socket) Write(cmd string) error {
	return s.Send([]byte(cmd))
}

// Read returns the next reply
func (s *Socket) Read() (string, error) {
	b, err := s.Recv()
	return string(b), err
}

// Query sends a command and returns the reply
func (s *Socket) Query(cmd string) (string, error) {
	if err := s.Send([]byte(cmd)); err != nil {
		return "", err
	}
	return s.Read()
}

// Close the connection, nil-ing the conn
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	if err == nil {
		s.conn = nil
	}
	return err
}

// SocketTransport serves TCPIP::SOCKET resources
type SocketTransport struct {
	// Resources are the socket resources to probe when listing
	Resources []string

	// Timeout bounds connect and every exchange
	Timeout time.Duration

	// Term overrides DefaultTerminators when non-zero
	Term Terminators
}

// Interface returns visa.TCPIPSocket
func (t *SocketTransport) Interface() string {
	return visa.TCPIPSocket
}

func (t *SocketTransport) terminators() Terminators {
	if t.Term == (Terminators{}) {
		return DefaultTerminators
	}
	return t.Term
}

// List dials each configured resource and reports the ones that accept a connection
func (t *SocketTransport) List() ([]string, error) {
	var out []string
	for _, res := range t.Resources {
		r, err := visa.ParseResource(res)
		if err != nil {
			return out, err
		}
		conn, err := TCPSetup(hostPort(r), t.timeout())
		if err != nil {
			continue
		}
		conn.Close()
		out = append(out, res)
	}
	return out, nil
}

// Dial opens a Socket to the resource
func (t *SocketTransport) Dial(r visa.Resource) (visa.Conn, error) {
	if r.Kind() != visa.TCPIPSocket {
		return nil, fmt.Errorf("comm: %s is not a socket resource", r)
	}
	return NewSocket(hostPort(r), t.timeout(), t.terminators())
}

func (t *SocketTransport) timeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

func hostPort(r visa.Resource) string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
