/*Package usbtmc is a visa.Transport for USB Test and Measurement Class
devices.

Messages are sent as DEV_DEP_MSG_OUT transfers: a 12 byte header, the
payload, and zero padding to a multiple of 4 bytes.  Replies are requested
with REQUEST_DEV_DEP_MSG_IN and read back in as many transfers as it takes
for the device to set the end of message bit.

To send a message:
1.  Write the header to a send buffer
2.  Write the data to it
3.  Pad to a multiple of 4 bytes and flush on the bulk out endpoint

To receive a message:
1.  Send a read request header on the bulk out endpoint
2.  Read from the bulk in endpoint
3.  Repeat until the header of the reply has EOM set
*/
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nasa-jpl/specsweep/visa"
)

const (
	reserved = 0x00

	headerSize = 12
	alignment  = 4

	msgOut       = 0x01 // DEV_DEP_MSG_OUT
	msgInRequest = 0x02 // REQUEST_DEV_DEP_MSG_IN

	// ClassTMC and SubClassTMC identify a USBTMC interface
	ClassTMC    = gousb.Class(0xfe)
	SubClassTMC = gousb.Class(0x03)

	// ReadSize is the transfer size requested from the device per read
	ReadSize = 1500

	// Terminator ends every command and reply
	Terminator = '\n'
)

// ErrShortHeader is returned when a bulk in transfer is too short to hold a header
var ErrShortHeader = errors.New("usbtmc: bulk in transfer shorter than its header")

// bTagGen is a concurrent-safe bTag generator.  Tags run 1..255.
type bTagGen struct {
	sync.Mutex
	value byte
}

func newBTagGen() *bTagGen {
	return &bTagGen{}
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag is the bitwise inversion of a bTag, USBTMC table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the DEV_DEP_MSG_OUT header of USBTMC table 3.
// The message is always marked as the end of the transfer.
func encBulkOutHeader(tag byte, datalen int) [headerSize]byte {
	out := [headerSize]byte{}
	out[0] = msgOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01 // EOM
	return out
}

// encBulkInHeader creates the REQUEST_DEV_DEP_MSG_IN header of USBTMC table 4.
// If terminator is nil the device is told to ignore the term char.
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	out[0] = msgInRequest
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02 // TermCharEnabled
		out[9] = *terminator
	}
	return out
}

// bulkIn is a decoded DEV_DEP_MSG_IN transfer
type bulkIn struct {
	Tag  byte
	Data []byte
	EOM  bool
}

// decBulkIn splits a bulk in transfer into header fields and payload,
// dropping the alignment padding
func decBulkIn(buf []byte) (bulkIn, error) {
	var out bulkIn
	if len(buf) < headerSize {
		return out, ErrShortHeader
	}
	if buf[0] != msgInRequest {
		return out, fmt.Errorf("usbtmc: unexpected MsgID %d in bulk in header", buf[0])
	}
	if buf[2] != invbTag(buf[1]) {
		return out, fmt.Errorf("usbtmc: bTag %d does not match its inverse %d", buf[1], buf[2])
	}
	size := int(binary.LittleEndian.Uint32(buf[4:8]))
	body := buf[headerSize:]
	if size > len(body) {
		size = len(body)
	}
	out.Tag = buf[1]
	out.Data = body[:size]
	out.EOM = buf[8]&0x01 != 0
	return out, nil
}

// frame builds the padded bulk out transfer for payload
func frame(tag byte, payload []byte) []byte {
	hdr := encBulkOutHeader(tag, len(payload))
	b := make([]byte, 0, headerSize+len(payload)+alignment)
	b = append(b, hdr[:]...)
	b = append(b, payload...)
	if residual := len(b) % alignment; residual > 0 {
		b = append(b, make([]byte, alignment-residual)...)
	}
	return b
}

// ResourceString formats the VISA address of a USBTMC device
func ResourceString(vid, pid gousb.ID, serial string) string {
	return fmt.Sprintf("USB0::0x%04X::0x%04X::%s::INSTR", uint16(vid), uint16(pid), serial)
}

// endpoints locates the TMC interface of a device and its bulk endpoints
type endpoints struct {
	Config    int
	Interface int
	Alternate int
	In        int
	Out       int
}

// findTMC searches a device descriptor for a USBTMC interface with a bulk
// in and a bulk out endpoint
func findTMC(desc *gousb.DeviceDesc) (endpoints, bool) {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class != ClassTMC || alt.SubClass != SubClassTMC {
					continue
				}
				ep := endpoints{Config: cfg.Number, Interface: alt.Number, Alternate: alt.Alternate, In: -1, Out: -1}
				for _, e := range alt.Endpoints {
					if e.TransferType != gousb.TransferTypeBulk {
						continue
					}
					if e.Direction == gousb.EndpointDirectionIn {
						ep.In = e.Number
					} else {
						ep.Out = e.Number
					}
				}
				if ep.In >= 0 && ep.Out >= 0 {
					return ep, true
				}
			}
		}
	}
	return endpoints{}, false
}

func isTMC(desc *gousb.DeviceDesc) bool {
	_, ok := findTMC(desc)
	return ok
}

// Transport serves USB resources through libusb
type Transport struct {
	ctx *gousb.Context
	log logrus.FieldLogger
}

// New returns a Transport with its own libusb context
func New(log logrus.FieldLogger) *Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transport{ctx: gousb.NewContext(), log: log}
}

// Interface satisfies visa.Transport
func (t *Transport) Interface() string {
	return visa.USB
}

// List returns the resource strings of attached USBTMC devices
func (t *Transport) List() ([]string, error) {
	devs, err := t.ctx.OpenDevices(isTMC)
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && len(devs) == 0 {
		return nil, errors.Wrap(err, "enumerating USB devices")
	}
	out := make([]string, 0, len(devs))
	for _, d := range devs {
		sn, err := d.SerialNumber()
		if err != nil {
			t.log.WithError(err).WithField("device", d.String()).Warn("reading USB serial number")
			continue
		}
		out = append(out, ResourceString(d.Desc.Vendor, d.Desc.Product, sn))
	}
	return out, nil
}

// Dial opens the device matching r's vendor, product and serial
func (t *Transport) Dial(r visa.Resource) (visa.Conn, error) {
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == r.Vendor && uint16(desc.Product) == r.Product && isTMC(desc)
	})
	if err != nil && len(devs) == 0 {
		return nil, errors.Wrap(err, "opening USB device")
	}
	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil {
			sn, _ := d.SerialNumber()
			if r.Serial == "" || strings.EqualFold(sn, r.Serial) {
				dev = d
				continue
			}
		}
		d.Close()
	}
	if dev == nil {
		return nil, fmt.Errorf("usbtmc: no device %04x:%04x with serial %q", r.Vendor, r.Product, r.Serial)
	}
	c, err := open(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the libusb context
func (t *Transport) Close() error {
	return t.ctx.Close()
}

func open(dev *gousb.Device) (*conn, error) {
	ep, _ := findTMC(dev.Desc)
	if err := dev.SetAutoDetach(true); err != nil {
		return nil, err
	}
	cfg, err := dev.Config(ep.Config)
	if err != nil {
		return nil, err
	}
	intf, err := cfg.Interface(ep.Interface, ep.Alternate)
	if err != nil {
		cfg.Close()
		return nil, err
	}
	in, err := intf.InEndpoint(ep.In)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, err
	}
	out, err := intf.OutEndpoint(ep.Out)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, err
	}
	return &conn{
		tags: newBTagGen(),
		in:   in,
		out:  out,
		closer: func() error {
			intf.Close()
			cfg.Close()
			return dev.Close()
		},
	}, nil
}

// conn is a visa.Conn over a pair of bulk endpoints
type conn struct {
	mu     sync.Mutex
	tags   *bTagGen
	in     io.Reader
	out    io.Writer
	closer func() error
}

func (c *conn) Write(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(cmd)
}

func (c *conn) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

func (c *conn) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.write(cmd); err != nil {
		return "", err
	}
	return c.read()
}

func (c *conn) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *conn) write(cmd string) error {
	if !strings.HasSuffix(cmd, string(Terminator)) {
		cmd += string(Terminator)
	}
	_, err := c.out.Write(frame(c.tags.next(), []byte(cmd)))
	return err
}

func (c *conn) read() (string, error) {
	var (
		sb   strings.Builder
		term = byte(Terminator)
		buf  = make([]byte, headerSize+ReadSize+alignment)
	)
	for {
		tag := c.tags.next()
		hdr := encBulkInHeader(tag, ReadSize, &term)
		if _, err := c.out.Write(hdr[:]); err != nil {
			return "", err
		}
		n, err := c.in.Read(buf)
		if err != nil {
			return "", err
		}
		msg, err := decBulkIn(buf[:n])
		if err != nil {
			return "", err
		}
		if msg.Tag != tag {
			return "", fmt.Errorf("usbtmc: reply bTag %d does not match request %d", msg.Tag, tag)
		}
		sb.Write(msg.Data)
		if msg.EOM {
			return sb.String(), nil
		}
	}
}
