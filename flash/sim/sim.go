// Package sim provides an in-memory QSPI NOR flash that satisfies
// flash.Probe. Erased bytes read 0xFF and programming can only clear bits,
// as on the real part. An optional image file backs the contents across
// sessions.
package sim

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/synthread/nrf-memory/flash"
)

// DefaultSize matches the 8 MiB part fitted to the Nordic development kits
const DefaultSize uint32 = 8 << 20

var ErrNotConnected = errors.New("simulated probe is not connected")
var ErrOutOfRange = errors.New("access outside simulated flash")

// Config defines the simulated device
type Config struct {
	Size   uint32
	Family string
	Serial string
	// Image is loaded on InitFromConfig and saved on Close when set
	Image string
}

// Device is a simulated target with external flash
type Device struct {
	config Config
	mem    []byte

	connected bool
	serial    string

	// ops records every probe call in order, for tests
	ops []Op

	// fault injection
	InitErr  error
	ReadErr  func(addr, n uint32) error
	WriteErr func(addr uint32) error
	EraseErr func(addr uint32, mode flash.EraseMode) error
	// Stuck forces the byte at an address to always read back as the value
	Stuck map[uint32]byte
}

// Op is one recorded probe call
type Op struct {
	Name string
	Addr uint32
	Len  uint32
	Mode flash.EraseMode
}

// New will create an erased simulated device
func New(c Config) *Device {
	if c.Size == 0 {
		c.Size = DefaultSize
	}
	if c.Family == "" {
		c.Family = "NRF52"
	}
	if c.Serial == "" {
		c.Serial = "682000000"
	}

	d := &Device{
		config: c,
		mem:    make([]byte, c.Size),
		Stuck:  map[uint32]byte{},
	}
	fill(d.mem, 0xff)
	return d
}

func fill(bs []byte, v byte) {
	for i := range bs {
		bs[i] = v
	}
}

func (d *Device) record(op Op) {
	d.ops = append(d.ops, op)
}

// Ops will return the probe calls made so far
func (d *Device) Ops() []Op {
	return append([]Op(nil), d.ops...)
}

// Memory will return the backing store, for inspection by tests
func (d *Device) Memory() []byte {
	return d.mem
}

func (d *Device) Connect(serial string) error {
	d.record(Op{Name: "connect"})
	if serial != "" && serial != d.config.Serial {
		return errors.Errorf("no probe with serial %s", serial)
	}
	d.connected = true
	d.serial = d.config.Serial
	return nil
}

func (d *Device) Halt() error {
	d.record(Op{Name: "halt"})
	return d.check()
}

func (d *Device) DisableProtection() error {
	d.record(Op{Name: "disable-protection"})
	return d.check()
}

// InitFromConfig will load the image file if one is configured. The QSPI
// ini file is not read.
func (d *Device) InitFromConfig(path string) error {
	d.record(Op{Name: "init"})
	if err := d.check(); err != nil {
		return err
	}
	if d.InitErr != nil {
		return d.InitErr
	}
	if d.config.Image == "" {
		return nil
	}

	bs, err := os.ReadFile(d.config.Image)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "could not load image")
	}
	copy(d.mem, bs)
	logrus.Debugf("sim: loaded %d byte(s) from %s", min(len(bs), len(d.mem)), d.config.Image)
	return nil
}

func (d *Device) DeviceFamily() string {
	return d.config.Family
}

func (d *Device) ConnectedSerial() string {
	return d.serial
}

func (d *Device) Size() uint32 {
	return d.config.Size
}

func (d *Device) check() error {
	if !d.connected {
		return ErrNotConnected
	}
	return nil
}

func (d *Device) bounds(addr, n uint32) error {
	if uint64(addr)+uint64(n) > uint64(len(d.mem)) {
		return errors.Wrapf(ErrOutOfRange, "0x%08X+0x%X", addr, n)
	}
	return nil
}

func (d *Device) Read(addr, n uint32) ([]byte, error) {
	d.record(Op{Name: "read", Addr: addr, Len: n})
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.ReadErr != nil {
		if err := d.ReadErr(addr, n); err != nil {
			return nil, err
		}
	}
	if err := d.bounds(addr, n); err != nil {
		return nil, err
	}

	bs := make([]byte, n)
	copy(bs, d.mem[addr:addr+n])
	for a, v := range d.Stuck {
		if a >= addr && a < addr+n {
			bs[a-addr] = v
		}
	}
	return bs, nil
}

// Write will program data at addr. Programming only clears bits, so
// writing over unerased flash ANDs the old and new contents.
func (d *Device) Write(addr uint32, data []byte) error {
	d.record(Op{Name: "write", Addr: addr, Len: uint32(len(data))})
	if err := d.check(); err != nil {
		return err
	}
	if d.WriteErr != nil {
		if err := d.WriteErr(addr); err != nil {
			return err
		}
	}
	if err := d.bounds(addr, uint32(len(data))); err != nil {
		return err
	}

	for i, b := range data {
		d.mem[addr+uint32(i)] &= b
	}
	return nil
}

func (d *Device) Erase(addr uint32, mode flash.EraseMode) error {
	d.record(Op{Name: "erase", Addr: addr, Mode: mode})
	if err := d.check(); err != nil {
		return err
	}
	if d.EraseErr != nil {
		if err := d.EraseErr(addr, mode); err != nil {
			return err
		}
	}

	if mode == flash.EraseAll {
		fill(d.mem, 0xff)
		return nil
	}

	base := addr - addr%flash.BlockSize
	if err := d.bounds(base, flash.BlockSize); err != nil {
		return err
	}
	fill(d.mem[base:base+flash.BlockSize], 0xff)
	return nil
}

// Close will disconnect and save the image file if one is configured
func (d *Device) Close() error {
	if !d.connected {
		return nil
	}
	d.record(Op{Name: "close"})
	d.connected = false

	if d.config.Image == "" {
		return nil
	}
	return errors.Wrap(os.WriteFile(d.config.Image, d.mem, 0644), "could not save image")
}
