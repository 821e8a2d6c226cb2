package flash

import (
	"time"

	"github.com/piotrjaromin/gpio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var DefaultQSPIConfig = "QspiDefault.ini"

// ProgressFunc receives the number of completed units out of total. Reads
// count bytes, tests count blocks or samples.
type ProgressFunc func(done, total uint32)

// Config defines how to reach the target and how long to let the flash
// settle between operations
type Config struct {
	Family Family
	// Serial of the probe, empty to use whichever is attached
	Serial string
	// QSPIConfig is the probe's QSPI initialisation file
	QSPIConfig string

	// ResetGPIO is a host GPIO wired to the target reset line. When set the
	// line is pulsed low before connecting.
	ResetGPIO int

	Progress ProgressFunc

	// Sleep is used for the settle delay
	Sleep func(time.Duration)
}

// Target is one exclusively owned session with the external flash behind a
// debug probe
type Target struct {
	config *Config
	probe  Probe

	pinReset gpio.Pin
	hasReset bool

	open bool

	family string
	serial string
}

// NewTarget will create a new session over the probe. The session is not
// opened until Open is called.
func NewTarget(p Probe, c *Config) (*Target, error) {
	if p == nil {
		return nil, configError("new target", errors.New("probe is required"))
	}
	if c == nil {
		c = &Config{}
	}

	if c.QSPIConfig == "" {
		c.QSPIConfig = DefaultQSPIConfig
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}

	return &Target{
		config: c,
		probe:  p,
	}, nil
}

// setupPins will claim the reset line, if one is configured, and leave the
// target running
func (t *Target) setupPins() (err error) {
	if t.config.ResetGPIO <= 0 {
		return nil
	}
	if t.pinReset, err = gpio.NewOutput(uint(t.config.ResetGPIO), true); err != nil {
		return
	}
	t.hasReset = true
	return
}

// resetTarget will pulse the reset line low
func (t *Target) resetTarget() {
	if !t.hasReset {
		return
	}
	t.pinReset.Low()
	time.Sleep(10 * time.Millisecond)
	t.pinReset.High()
	time.Sleep(10 * time.Millisecond)
}

// Open will connect to the probe, halt the target core and ready its QSPI
// peripheral. Any failure leaves the session closed.
func (t *Target) Open() (err error) {
	if t.open {
		return nil
	}

	if err = t.setupPins(); err != nil {
		return connectionError("setup reset pin", err)
	}
	t.resetTarget()

	defer func() {
		if err != nil {
			t.release()
		}
	}()

	if err = t.probe.Connect(t.config.Serial); err != nil {
		return connectionError("connect", err)
	}
	if err = t.probe.Halt(); err != nil {
		return connectionError("halt", err)
	}
	if err = t.probe.DisableProtection(); err != nil {
		return connectionError("disable protection", err)
	}
	if err = t.probe.InitFromConfig(t.config.QSPIConfig); err != nil {
		return configError("init qspi", errors.Wrapf(err, "config %s", t.config.QSPIConfig))
	}

	t.family = t.probe.DeviceFamily()
	t.serial = t.probe.ConnectedSerial()
	t.open = true

	logrus.WithFields(logrus.Fields{
		"family": t.family,
		"serial": t.serial,
		"conf":   t.config.QSPIConfig,
	}).Debug("target open")

	return nil
}

// Close will release the probe and the reset line. It is safe to call on a
// session that failed to open or is already closed.
func (t *Target) Close() error {
	wasOpen := t.open
	t.open = false

	err := t.release()
	if wasOpen {
		logrus.Debug("target close")
	}
	return err
}

func (t *Target) release() error {
	err := t.probe.Close()

	if t.hasReset {
		t.pinReset.Cleanup()
		t.hasReset = false
	}

	return errors.Wrap(err, "could not close probe")
}

func (t *Target) IsOpen() bool {
	return t.open
}

// Identity describes the device a session is attached to
type Identity struct {
	Family    string
	Serial    string
	FlashSize uint32
}

// Identify will report the family and probe serial of the connected target
// and the size of its external flash
func (t *Target) Identify() (Identity, error) {
	if !t.open {
		return Identity{}, connectionError("identify", ErrClosed)
	}
	return Identity{
		Family:    t.family,
		Serial:    t.serial,
		FlashSize: t.probe.Size(),
	}, nil
}

// Config will return the configuration the session was created with
func (t *Target) Config() Config {
	return *t.config
}

func (t *Target) reportProgress(done, total uint32) {
	if t.config.Progress != nil {
		t.config.Progress(done, total)
	}
}

func (t *Target) settle() {
	t.config.Sleep(SettleDelay)
}

func (t *Target) requireOpen(op string) error {
	if !t.open {
		return connectionError(op, ErrClosed)
	}
	return nil
}
