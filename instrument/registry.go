package instrument

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/nasa-jpl/specsweep/visa"
)

var (
	// ErrUnknownNickname is returned when a nickname has no address
	ErrUnknownNickname = errors.New("instrument: unknown device nickname")

	// ErrAddressOwned is returned when a nickname aliases an address that
	// another nickname already holds a session to
	ErrAddressOwned = errors.New("instrument: address already owned by another nickname")
)

// Addresses maps device nicknames to bus resources
type Addresses map[string]string

// DefaultAddresses is the bench wiring.  The lasers TLB-6500 and TSL-210F
// share a GPIB address; they are never connected at the same time.  Give
// them distinct addresses if both are.
var DefaultAddresses = Addresses{
	"TSL-710":  "GPIB0::17::INSTR",
	"TSL-510":  "GPIB0::12::INSTR",
	"TLB-6500": "GPIB0::11::INSTR",
	"TSL-210F": "GPIB0::11::INSTR",
	"LI5660":   "GPIB0::6::INSTR",
	"LI5645":   "GPIB0::2::INSTR",
	"86120":    "GPIB0::7::INSTR",
}

// Merge returns a copy of a with the entries of b laid over it
func (a Addresses) Merge(b Addresses) Addresses {
	out := make(Addresses, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Registry resolves nicknames to open instruments and makes sure no device
// is opened twice.  One registry exists per run; Close it at the end.
type Registry struct {
	bus   visa.Bus
	addrs Addresses
	open  map[string]*Instrument
	owner map[string]string // resource -> nickname
	live  []string          // listed once, on first use
	opts  []Option
	log   logrus.FieldLogger
}

// NewRegistry creates a registry over bus.  The address table is copied and
// not modified afterwards.  opts are applied to every opened Instrument.
func NewRegistry(bus visa.Bus, addrs Addresses, log logrus.FieldLogger, opts ...Option) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		bus:   bus,
		addrs: Addresses{}.Merge(addrs),
		open:  make(map[string]*Instrument),
		owner: make(map[string]string),
		opts:  append([]Option{WithLogger(log)}, opts...),
		log:   log,
	}
}

// Address returns the resource a nickname maps to
func (r *Registry) Address(nickname string) (string, bool) {
	a, ok := r.addrs[nickname]
	return a, ok
}

// Nicknames returns the known nicknames, sorted
func (r *Registry) Nicknames() []string {
	out := make([]string, 0, len(r.addrs))
	for k := range r.addrs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolve opens the device known as nickname.
//
// If its address is not among the bus's live resources a warning is logged
// and (false, nil, nil) is returned; the caller may proceed without it.  If
// the nickname was resolved before, (true, nil, nil) is returned and the
// prior handle is available from Lookup.  Otherwise a session is opened and
// (true, handle, nil) is returned.
func (r *Registry) Resolve(nickname string) (bool, *Instrument, error) {
	addr, ok := r.addrs[nickname]
	if !ok {
		return false, nil, errors.Wrap(ErrUnknownNickname, nickname)
	}
	live, err := r.liveResources()
	if err != nil {
		return false, nil, err
	}
	if !contains(live, addr) {
		r.log.WithFields(logrus.Fields{"device": nickname, "resource": addr}).
			Warnf("%s is not active; please check the device is turned on and the cable is properly connected", nickname)
		return false, nil, nil
	}
	if _, ok := r.open[nickname]; ok {
		return true, nil, nil
	}
	if other, ok := r.owner[addr]; ok {
		return false, nil, errors.Wrapf(ErrAddressOwned, "%s aliases %s held by %s", nickname, addr, other)
	}
	sess, err := r.bus.Open(addr)
	if err != nil {
		return false, nil, err
	}
	in := New(sess, r.opts...)
	r.open[nickname] = in
	r.owner[addr] = nickname
	r.log.WithFields(logrus.Fields{"device": nickname, "resource": addr}).Debug("opened instrument")
	return true, in, nil
}

// Lookup returns the handle opened for nickname, or nil
func (r *Registry) Lookup(nickname string) *Instrument {
	return r.open[nickname]
}

// Close closes every session the registry opened
func (r *Registry) Close() error {
	var err error
	for _, nick := range sortedKeys(r.open) {
		err = multierr.Append(err, r.open[nick].Close())
		delete(r.owner, r.open[nick].Resource())
		delete(r.open, nick)
	}
	return err
}

// Identify queries *IDN? on every live resource.  Resources already owned
// are queried through their existing handle; others are opened briefly.
// Per-device failures are reported in the map rather than as an error.
func (r *Registry) Identify() (map[string]string, error) {
	live, err := r.liveResources()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(live))
	for _, addr := range live {
		if nick, ok := r.owner[addr]; ok {
			out[addr] = idn(r.open[nick])
			continue
		}
		sess, err := r.bus.Open(addr)
		if err != nil {
			out[addr] = fmt.Sprintf("error: %v", err)
			continue
		}
		in := New(sess, r.opts...)
		out[addr] = idn(in)
		if err := in.Close(); err != nil {
			r.log.WithField("resource", addr).Warnf("closing after *IDN?: %v", err)
		}
	}
	return out, nil
}

// liveResources lists the bus the first time it is needed.  Listing a GPIB
// bus polls every address, so the result holds for the registry's lifetime.
func (r *Registry) liveResources() ([]string, error) {
	if r.live != nil {
		return r.live, nil
	}
	live, err := r.bus.ListResources()
	if err != nil {
		return nil, err
	}
	if live == nil {
		live = []string{}
	}
	r.live = live
	return live, nil
}

func idn(in *Instrument) string {
	s, err := in.Identify()
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return s
}

func contains(l []string, s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]*Instrument) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
