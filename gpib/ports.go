package gpib

import (
	"strings"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
)

// AutoPort asks FindPort to pick the controller's port
const AutoPort = "auto"

// ftdiVID is the USB vendor of the FTDI bridge inside Prologix controllers
const ftdiVID = "0403"

// Port is a serial port found on the host
type Port struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// Ports lists the serial ports of the host
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "listing serial ports")
	}
	out := make([]Port, 0, len(details))
	for _, d := range details {
		out = append(out, Port{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return out, nil
}

// FindPort returns port unless it is AutoPort or empty, in which case the
// host's serial ports are searched for a Prologix controller
func FindPort(port string) (string, error) {
	if port != "" && port != AutoPort {
		return port, nil
	}
	ports, err := Ports()
	if err != nil {
		return "", err
	}
	return pick(ports)
}

// pick prefers an FTDI USB port, then any USB port
func pick(ports []Port) (string, error) {
	for _, p := range ports {
		if p.USB && strings.EqualFold(p.VID, ftdiVID) {
			return p.Name, nil
		}
	}
	for _, p := range ports {
		if p.USB {
			return p.Name, nil
		}
	}
	return "", errors.New("gpib: no USB serial port found for the Prologix controller")
}
