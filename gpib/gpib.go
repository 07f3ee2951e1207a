/*Package gpib is a GPIB bus reached through a Prologix GPIB-USB controller.

The controller appears as a virtual serial port.  One Transport owns the port;
every session opened through it re-addresses the controller before each
exchange, so sessions to different instruments may be interleaved freely.
*/
package gpib

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/prologix"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"github.com/nasa-jpl/specsweep/visa"
)

const (
	// DefaultBaud is the rate of the Prologix virtual COM port
	DefaultBaud = 115200

	// DefaultTimeout is the serial read timeout
	DefaultTimeout = 3 * time.Second

	// secondaryBase is added to a VISA secondary address to form the
	// Prologix one (96-126)
	secondaryBase = 96
)

// ErrNoReply is returned when an instrument does not answer a read
var ErrNoReply = errors.New("gpib: no reply before timeout")

// Config describes the controller connection
type Config struct {
	// Port is the serial device, or "auto" to take the first USB serial port
	Port string `koanf:"port"`

	Baud    int           `koanf:"baud"`
	Timeout time.Duration `koanf:"timeout"`

	// Board is the VISA board number the transport answers for
	Board int `koanf:"board"`

	// Candidates are the primary addresses List polls.  All of 1-30 if empty.
	Candidates []int `koanf:"candidates"`
}

// Transport is a visa.Transport over a Prologix controller
type Transport struct {
	mu         sync.Mutex
	ctrl       *prologix.Controller
	closer     io.Closer
	board      int
	candidates []int
	addressed  string
	log        logrus.FieldLogger
}

// Open opens the controller's serial port and configures it
func Open(cfg Config, log logrus.FieldLogger) (*Transport, error) {
	port, err := FindPort(cfg.Port)
	if err != nil {
		return nil, err
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	sp, err := serial.OpenPort(&serial.Config{Name: port, Baud: cfg.Baud, ReadTimeout: cfg.Timeout})
	if err != nil {
		return nil, errors.Wrapf(err, "opening Prologix controller on %s", port)
	}
	t, err := New(sp, cfg.Board, cfg.Candidates, log)
	if err != nil {
		sp.Close()
		return nil, err
	}
	t.closer = sp
	return t, nil
}

// New configures a controller reachable through rw
func New(rw io.ReadWriter, board int, candidates []int, log logrus.FieldLogger) (*Transport, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(candidates) == 0 {
		for pad := 1; pad <= 30; pad++ {
			candidates = append(candidates, pad)
		}
	}
	ctrl, err := prologix.NewController(byteWise{rw}, candidates[0], false)
	if err != nil {
		return nil, errors.Wrap(err, "configuring Prologix controller")
	}
	return &Transport{ctrl: ctrl, board: board, candidates: candidates, log: log}, nil
}

// Interface satisfies visa.Transport
func (t *Transport) Interface() string {
	return visa.GPIB
}

// List serial-polls every candidate address and returns those that answer
func (t *Transport) List() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, pad := range t.candidates {
		if err := t.address(pad, -1); err != nil {
			return out, err
		}
		resp, err := t.ctrl.QueryController("spoll")
		if err != nil || strings.TrimSpace(resp) == "" {
			continue
		}
		out = append(out, fmt.Sprintf("GPIB%d::%d::INSTR", t.board, pad))
	}
	t.log.WithField("resources", out).Debug("GPIB poll")
	return out, nil
}

// Dial satisfies visa.Transport
func (t *Transport) Dial(r visa.Resource) (visa.Conn, error) {
	if r.Board != t.board {
		return nil, errors.Errorf("gpib: controller serves board %d, not %d", t.board, r.Board)
	}
	return &conn{t: t, pad: r.Primary, sad: r.Secondary}, nil
}

// Close closes the serial port
func (t *Transport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// address points the controller at an instrument.  Caller holds mu.
func (t *Transport) address(pad, sad int) error {
	cmd := fmt.Sprintf("addr %d", pad)
	if sad >= 0 {
		cmd = fmt.Sprintf("addr %d %d", pad, sad+secondaryBase)
	}
	if cmd == t.addressed {
		return nil
	}
	if err := t.ctrl.CommandController(cmd); err != nil {
		t.addressed = ""
		return err
	}
	t.addressed = cmd
	return nil
}

type conn struct {
	t   *Transport
	pad int
	sad int
}

func (c *conn) Write(cmd string) error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if err := c.t.address(c.pad, c.sad); err != nil {
		return err
	}
	return c.t.ctrl.Command("%s", cmd)
}

func (c *conn) Query(cmd string) (string, error) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if err := c.t.address(c.pad, c.sad); err != nil {
		return "", err
	}
	resp, err := c.t.ctrl.Query(cmd)
	if err != nil {
		return "", err
	}
	if resp == "" {
		return "", ErrNoReply
	}
	return resp, nil
}

func (c *conn) Read() (string, error) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if err := c.t.address(c.pad, c.sad); err != nil {
		return "", err
	}
	if err := c.t.ctrl.CommandController("read eoi"); err != nil {
		return "", err
	}
	resp, err := readLine(c.t.ctrl)
	if resp == "" {
		if err == nil || err == io.EOF {
			err = ErrNoReply
		}
		return "", err
	}
	return resp, nil
}

func (c *conn) Close() error {
	return nil
}

// byteWise hands out one byte per Read.  The controller wraps the port in a
// new bufio.Reader for every reply; reading a byte at a time keeps those
// readers from swallowing whatever follows the terminator.
type byteWise struct {
	io.ReadWriter
}

func (b byteWise) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return b.ReadWriter.Read(p)
}

// readLine reads up to and including '\n'
func readLine(r io.Reader) (string, error) {
	var (
		sb  strings.Builder
		buf [1]byte
	)
	for {
		n, err := r.Read(buf[:])
		if n == 1 {
			sb.WriteByte(buf[0])
			if buf[0] == '\n' {
				return sb.String(), nil
			}
		}
		if err != nil || n == 0 {
			return sb.String(), err
		}
	}
}
