package visa

import (
	"fmt"
	"strconv"
	"strings"
)

// Interface types understood by ParseResource
const (
	GPIB  = "GPIB"
	TCPIP = "TCPIP"
	USB   = "USB"
	SIM   = "SIM"

	// TCPIPSocket is the kind of raw socket resources, which are served by a
	// different transport than TCPIP instruments
	TCPIPSocket = "TCPIP::SOCKET"
)

// Resource is a parsed VISA-style resource string
type Resource struct {
	// Raw is the string the resource was parsed from
	Raw string

	// Interface is the interface type, e.g. GPIB or TCPIP
	Interface string

	// Board is the interface board number, 0 for GPIB0
	Board int

	// Class is INSTR or SOCKET
	Class string

	// Primary and Secondary are GPIB addresses.  Secondary is -1 when absent.
	Primary   int
	Secondary int

	// Host, Device and Port are used by TCPIP resources
	Host   string
	Device string
	Port   int

	// Vendor, Product and Serial are used by USB resources
	Vendor  uint16
	Product uint16
	Serial  string

	// Name identifies a simulated device
	Name string
}

// Kind returns the key transports are registered under: the interface type,
// or TCPIPSocket for raw sockets
func (r Resource) Kind() string {
	if r.Interface == TCPIP && r.Class == "SOCKET" {
		return TCPIPSocket
	}
	return r.Interface
}

// String returns the raw resource string
func (r Resource) String() string {
	return r.Raw
}

// ParseResource parses strings such as GPIB0::17::INSTR,
// TCPIP0::192.168.1.20::hislip0::INSTR, TCPIP0::10.0.0.2::5025::SOCKET
// and USB0::0x1313::0x804A::M00412345::INSTR
func ParseResource(s string) (Resource, error) {
	r := Resource{Raw: s, Secondary: -1}
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) < 2 {
		return r, fmt.Errorf("visa: malformed resource %q", s)
	}
	head := strings.ToUpper(parts[0])
	r.Class = strings.ToUpper(parts[len(parts)-1])
	body := parts[1 : len(parts)-1]
	if r.Class != "INSTR" && r.Class != "SOCKET" {
		// the class suffix is optional and defaults to INSTR
		r.Class = "INSTR"
		body = parts[1:]
	}

	for _, iface := range []string{TCPIP, GPIB, USB, SIM} {
		if strings.HasPrefix(head, iface) {
			r.Interface = iface
			board := strings.TrimPrefix(head, iface)
			if board != "" {
				b, err := strconv.Atoi(board)
				if err != nil {
					return r, fmt.Errorf("visa: bad board number in %q", s)
				}
				r.Board = b
			}
			break
		}
	}

	switch r.Interface {
	case GPIB:
		if len(body) < 1 || len(body) > 2 || r.Class != "INSTR" {
			return r, fmt.Errorf("visa: malformed GPIB resource %q", s)
		}
		pad, err := strconv.Atoi(body[0])
		if err != nil || pad < 0 || pad > 30 {
			return r, fmt.Errorf("visa: bad GPIB primary address in %q", s)
		}
		r.Primary = pad
		if len(body) == 2 {
			sad, err := strconv.Atoi(body[1])
			if err != nil || sad < 0 || sad > 30 {
				return r, fmt.Errorf("visa: bad GPIB secondary address in %q", s)
			}
			r.Secondary = sad
		}
	case TCPIP:
		if len(body) < 1 {
			return r, fmt.Errorf("visa: malformed TCPIP resource %q", s)
		}
		r.Host = body[0]
		if r.Class == "SOCKET" {
			if len(body) != 2 {
				return r, fmt.Errorf("visa: socket resource %q needs a port", s)
			}
			port, err := strconv.Atoi(body[1])
			if err != nil || port <= 0 || port > 65535 {
				return r, fmt.Errorf("visa: bad port in %q", s)
			}
			r.Port = port
		} else {
			r.Device = "inst0"
			if len(body) == 2 {
				r.Device = body[1]
			}
		}
	case USB:
		if len(body) < 2 || len(body) > 4 {
			return r, fmt.Errorf("visa: malformed USB resource %q", s)
		}
		vid, err := strconv.ParseUint(body[0], 0, 16)
		if err != nil {
			return r, fmt.Errorf("visa: bad USB vendor id in %q", s)
		}
		pid, err := strconv.ParseUint(body[1], 0, 16)
		if err != nil {
			return r, fmt.Errorf("visa: bad USB product id in %q", s)
		}
		r.Vendor, r.Product = uint16(vid), uint16(pid)
		if len(body) > 2 {
			r.Serial = body[2]
		}
	case SIM:
		if len(body) != 1 {
			return r, fmt.Errorf("visa: malformed SIM resource %q", s)
		}
		r.Name = body[0]
	default:
		return r, fmt.Errorf("visa: unsupported interface in %q", s)
	}
	return r, nil
}
