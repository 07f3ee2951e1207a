package visa

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

// Transport provides Conns for one interface type
type Transport interface {
	// Interface returns the resource kind served, e.g. GPIB or TCPIP::SOCKET
	Interface() string

	// List returns the resource strings of live devices
	List() ([]string, error)

	// Dial opens a connection to a resource
	Dial(Resource) (Conn, error)
}

// ResourceManager is a Bus which dispatches to transports by interface type
type ResourceManager struct {
	transports map[string]Transport
}

// NewResourceManager returns a ResourceManager serving the given transports.
// A later transport for the same interface replaces an earlier one.
func NewResourceManager(ts ...Transport) *ResourceManager {
	rm := &ResourceManager{transports: make(map[string]Transport, len(ts))}
	for _, t := range ts {
		rm.transports[t.Interface()] = t
	}
	return rm
}

// Interfaces returns the interface types the manager can open, sorted
func (rm *ResourceManager) Interfaces() []string {
	out := make([]string, 0, len(rm.transports))
	for k := range rm.transports {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ListResources merges the live lists of every transport.  Failing
// transports are skipped; their errors are returned only if no transport
// could list anything.
func (rm *ResourceManager) ListResources() ([]string, error) {
	var (
		out  []string
		errs error
		ok   bool
	)
	for _, iface := range rm.Interfaces() {
		l, err := rm.transports[iface].List()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", iface, err))
			continue
		}
		ok = true
		out = append(out, l...)
	}
	if !ok && errs != nil {
		return nil, &CommunicationError{Op: "list", Resource: "*", Err: errs}
	}
	return out, nil
}

// Open opens a session to addr through the transport for its interface
func (rm *ResourceManager) Open(addr string) (Session, error) {
	r, err := ParseResource(addr)
	if err != nil {
		return nil, err
	}
	t, ok := rm.transports[r.Kind()]
	if !ok {
		return nil, fmt.Errorf("visa: no transport configured for %s resources (%s)", r.Kind(), addr)
	}
	c, err := t.Dial(r)
	if err != nil {
		return nil, &CommunicationError{Op: "open", Resource: addr, Err: err}
	}
	return Wrap(addr, c), nil
}
