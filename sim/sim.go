/*Package sim provides a simulated optical bench: a visa.Bus whose devices are
in-memory models of the lasers, wavelength meter and lock-in amplifiers
specsweep drives.

The devices share an Optics value, so the lock-in reads a resonance around
whatever wavelength the simulated laser is currently emitting.  Every command
reaching a device is kept in a per-address transcript.
*/
package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nasa-jpl/specsweep/visa"
)

// ErrNoReply is returned by Read when the device has nothing to say,
// the simulated equivalent of a bus timeout
var ErrNoReply = errors.New("sim: read timeout, device sent no reply")

// ErrOffline is returned when opening a device that is switched off
var ErrOffline = errors.New("sim: device is offline")

// Device is a simulated instrument
type Device interface {
	// Handle processes one command.  ok reports whether a reply is produced.
	Handle(cmd string) (reply string, ok bool)
}

// Func adapts a function to the Device interface
type Func func(cmd string) (string, bool)

// Handle calls f
func (f Func) Handle(cmd string) (string, bool) {
	return f(cmd)
}

// Bench is a simulated bus.  It is safe for concurrent use.
type Bench struct {
	// Optics is the optical state shared by the bench's devices
	Optics *Optics

	mu         sync.Mutex
	devices    map[string]Device
	offline    map[string]bool
	transcript map[string][]string
	opens      map[string]int
}

// NewBench returns an empty bench
func NewBench() *Bench {
	return &Bench{
		Optics:     NewOptics(),
		devices:    make(map[string]Device),
		offline:    make(map[string]bool),
		transcript: make(map[string][]string),
		opens:      make(map[string]int),
	}
}

// Attach connects a device at addr, replacing any device already there
func (b *Bench) Attach(addr string, d Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[addr] = d
}

// SetOnline switches the device at addr on or off.  Offline devices are not
// listed and cannot be opened.
func (b *Bench) SetOnline(addr string, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline[addr] = !on
}

// Sent returns a copy of every command written to addr
func (b *Bench) Sent(addr string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.transcript[addr]...)
}

// Opens returns how many sessions were opened to addr
func (b *Bench) Opens(addr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[addr]
}

// ListResources returns the addresses of online devices, sorted
func (b *Bench) ListResources() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.devices))
	for addr := range b.devices {
		if !b.offline[addr] {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Open opens a session to the device at addr
func (b *Bench) Open(addr string) (visa.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[addr]
	if !ok {
		return nil, &visa.CommunicationError{Op: "open", Resource: addr, Err: fmt.Errorf("sim: nothing attached")}
	}
	if b.offline[addr] {
		return nil, &visa.CommunicationError{Op: "open", Resource: addr, Err: ErrOffline}
	}
	b.opens[addr]++
	return visa.Wrap(addr, &conn{bench: b, addr: addr, dev: d}), nil
}

func (b *Bench) record(addr, cmd string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transcript[addr] = append(b.transcript[addr], cmd)
}

// conn is a visa.Conn to one simulated device
type conn struct {
	bench   *Bench
	addr    string
	dev     Device
	pending []string
	closed  bool
}

func (c *conn) Write(cmd string) error {
	if c.closed {
		return errors.New("sim: session closed")
	}
	c.bench.record(c.addr, cmd)
	if reply, ok := c.dev.Handle(cmd); ok {
		c.pending = append(c.pending, reply)
	}
	return nil
}

func (c *conn) Read() (string, error) {
	if c.closed {
		return "", errors.New("sim: session closed")
	}
	if len(c.pending) == 0 {
		return "", ErrNoReply
	}
	r := c.pending[0]
	c.pending = c.pending[1:]
	return r + "\n", nil
}

func (c *conn) Query(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", err
	}
	return c.Read()
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}
