/*Package visa defines the instrument bus contract the rest of specsweep is
written against.

A Bus enumerates the resources that are currently live and opens conversational
Sessions to them by address.  Concrete transports (GPIB through a Prologix
controller, raw sockets, USBTMC, or the simulated bench) only need to
provide a Conn; Wrap layers the numeric query and the error taxonomy on top.
*/
package visa

import (
	"strings"
)

// Conn is the raw primitive a transport provides for one open resource
type Conn interface {
	// Write sends a command without expecting a reply
	Write(string) error

	// Query sends a command and returns the reply with terminators removed
	Query(string) (string, error)

	// Read returns the next reply from the device
	Read() (string, error)

	// Close releases the connection
	Close() error
}

// Session is an open conversation with one device
type Session interface {
	Conn

	// QueryNumericArray sends a query and parses the ASCII reply as a list of floats
	QueryNumericArray(string) ([]float64, error)

	// Resource returns the address the session was opened to
	Resource() string
}

// Bus is something that can list live resources and open sessions to them
type Bus interface {
	// ListResources returns the addresses of devices that currently respond
	ListResources() ([]string, error)

	// Open opens a new session to the device at addr
	Open(addr string) (Session, error)
}

// session implements Session on top of a Conn
type session struct {
	conn Conn
	addr string
}

// Wrap converts a Conn into a Session.  Transport failures are reported as
// *CommunicationError and malformed numeric replies as *ParseError.
func Wrap(addr string, c Conn) Session {
	return &session{conn: c, addr: addr}
}

func (s *session) Resource() string {
	return s.addr
}

func (s *session) Write(cmd string) error {
	if err := s.conn.Write(cmd); err != nil {
		return &CommunicationError{Op: "write", Resource: s.addr, Cmd: cmd, Err: err}
	}
	return nil
}

func (s *session) Query(cmd string) (string, error) {
	resp, err := s.conn.Query(cmd)
	if err != nil {
		return "", &CommunicationError{Op: "query", Resource: s.addr, Cmd: cmd, Err: err}
	}
	return trimReply(resp), nil
}

func (s *session) Read() (string, error) {
	resp, err := s.conn.Read()
	if err != nil {
		return "", &CommunicationError{Op: "read", Resource: s.addr, Err: err}
	}
	return trimReply(resp), nil
}

func (s *session) QueryNumericArray(cmd string) ([]float64, error) {
	resp, err := s.Query(cmd)
	if err != nil {
		return nil, err
	}
	vals, err := ParseASCII(resp)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Resource = s.addr
			pe.Cmd = cmd
		}
		return nil, err
	}
	return vals, nil
}

func (s *session) Close() error {
	if err := s.conn.Close(); err != nil {
		return &CommunicationError{Op: "close", Resource: s.addr, Err: err}
	}
	return nil
}

func trimReply(s string) string {
	return strings.TrimRight(s, "\r\n")
}
