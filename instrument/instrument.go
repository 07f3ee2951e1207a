// Package instrument provides the shared low-level instrument primitive every
// driver holds, and the registry that hands those primitives out by nickname.
package instrument

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nasa-jpl/specsweep/visa"
)

const (
	// DefaultPollInterval is the spacing of operation-complete polls
	DefaultPollInterval = 100 * time.Millisecond

	// OperationCompleteQuery is the IEEE 488.2 operation complete query
	OperationCompleteQuery = "*OPC?"
)

var errPending = errors.New("operation pending")

// Option configures an Instrument
type Option func(*Instrument)

// WithPollInterval sets the interval of the operation-complete poll.
// Tests use zero.
func WithPollInterval(d time.Duration) Option {
	return func(in *Instrument) { in.pollInterval = d }
}

// WithLogger sets the logger progress notices are written to
func WithLogger(l logrus.FieldLogger) Option {
	return func(in *Instrument) { in.log = l }
}

// Instrument owns one open session and exposes the primitives drivers are
// built from.  It is not safe for concurrent use.
type Instrument struct {
	sess         visa.Session
	log          logrus.FieldLogger
	pollInterval time.Duration
}

// New wraps an open session
func New(s visa.Session, opts ...Option) *Instrument {
	in := &Instrument{
		sess:         s,
		log:          logrus.StandardLogger(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(in)
	}
	in.log = in.log.WithField("resource", s.Resource())
	return in
}

// Resource returns the bus address of the instrument
func (in *Instrument) Resource() string {
	return in.sess.Resource()
}

// Logger returns the logger scoped to this instrument
func (in *Instrument) Logger() logrus.FieldLogger {
	return in.log
}

// PollInterval returns the operation-complete poll interval
func (in *Instrument) PollInterval() time.Duration {
	return in.pollInterval
}

// Write sends a command
func (in *Instrument) Write(cmd string) error {
	return in.sess.Write(cmd)
}

// Query sends a command and returns the reply
func (in *Instrument) Query(cmd string) (string, error) {
	return in.sess.Query(cmd)
}

// Read returns the next reply from the device
func (in *Instrument) Read() (string, error) {
	return in.sess.Read()
}

// ReadValues sends a query and parses the ASCII reply into floats
func (in *Instrument) ReadValues(cmd string) ([]float64, error) {
	return in.sess.QueryNumericArray(cmd)
}

// ReadValue is ReadValues, returning only the first element
func (in *Instrument) ReadValue(cmd string) (float64, error) {
	vals, err := in.ReadValues(cmd)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// Identify returns the reply to *IDN?
func (in *Instrument) Identify() (string, error) {
	return in.Query("*IDN?")
}

// WriteConfirmed writes a command whose effect is not instantaneous, then
// blocks until the device reports operation complete.  A "please wait" notice
// is logged for every poll that finds the operation still pending.
func (in *Instrument) WriteConfirmed(ctx context.Context, cmd string) error {
	if err := in.Write(cmd); err != nil {
		return err
	}
	check := func() (bool, error) {
		resp, err := in.Query(OperationCompleteQuery)
		if err != nil {
			return false, err
		}
		return !strings.HasPrefix(strings.TrimSpace(resp), "0"), nil
	}
	err := Poll(ctx, in.pollInterval, check, func() { in.log.Info("Please wait...") })
	if err != nil {
		return err
	}
	in.log.Info("Done.")
	return nil
}

// Close closes the session
func (in *Instrument) Close() error {
	return in.sess.Close()
}

// Poll calls check every interval until it reports done, ctx ends, or it
// fails.  Failures from check are returned at once and never retried.
// notify, if not nil, is called after every check that is not done.
func Poll(ctx context.Context, interval time.Duration, check func() (bool, error), notify func()) error {
	op := func() error {
		done, err := check()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errPending
		}
		return nil
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	err := backoff.RetryNotify(op, b, func(error, time.Duration) {
		if notify != nil {
			notify()
		}
	})
	if err == errPending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "poll stopped")
	}
	return err
}
