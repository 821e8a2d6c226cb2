// Package nrfjprog implements flash.Probe on top of Nordic's nrfjprog
// command line tool. Every QSPI operation is a separate nrfjprog run that
// carries the QSPI ini file, so the tool configures the peripheral itself.
package nrfjprog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/synthread/nrf-memory/flash"
)

var DefaultBinary = "nrfjprog"

var ErrNotConnected = errors.New("nrfjprog probe is not connected")
var ErrNoMemSize = errors.New("qspi config has no MemSize")

// xipBase is where the external flash is mapped into the target's address
// space, which is the address nrfjprog expects for QSPI memory
var xipBase = map[flash.Family]uint32{
	flash.FamilyAuto:  0x12000000,
	flash.FamilyNRF52: 0x12000000,
	flash.FamilyNRF53: 0x10000000,
}

// Runner executes nrfjprog with the given arguments and returns its
// combined output
type Runner interface {
	Run(args ...string) ([]byte, error)
}

type execRunner struct {
	binary string
}

func (r execRunner) Run(args ...string) ([]byte, error) {
	out, err := exec.Command(r.binary, args...).CombinedOutput()
	if err != nil {
		return out, errors.Wrapf(err, "%s %s: %s", r.binary, strings.Join(args, " "),
			strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Config defines how nrfjprog is invoked
type Config struct {
	Family flash.Family
	// Binary is the nrfjprog executable, DefaultBinary when empty
	Binary string
	// XIPBase overrides the family's QSPI mapping when non-zero
	XIPBase uint32
	// Runner replaces process execution, mainly for tests
	Runner Runner
	// TempDir holds the hex images handed to --program
	TempDir string
}

// Probe drives a target through nrfjprog
type Probe struct {
	config Config
	runner Runner

	connected bool
	serial    string
	qspiIni   string
	memSize   uint32
	family    string
}

// New will create a probe. It does not run nrfjprog until Connect.
func New(c Config) (*Probe, error) {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.XIPBase == 0 {
		base, ok := xipBase[c.Family]
		if !ok {
			return nil, errors.Errorf("%s has no QSPI peripheral", c.Family)
		}
		c.XIPBase = base
	}

	p := &Probe{config: c, runner: c.Runner}
	if p.runner == nil {
		p.runner = execRunner{binary: c.Binary}
	}
	return p, nil
}

// base will return the arguments shared by every invocation
func (p *Probe) base() []string {
	var args []string
	if p.config.Family != flash.FamilyAuto {
		args = append(args, "--family", p.config.Family.String())
	}
	if p.serial != "" {
		args = append(args, "--snr", p.serial)
	}
	return args
}

func (p *Probe) qspiArgs() []string {
	return append(p.base(), "--qspiini", p.qspiIni)
}

func (p *Probe) run(args ...string) ([]byte, error) {
	logrus.Debugf("nrfjprog %s", strings.Join(args, " "))
	return p.runner.Run(args...)
}

func (p *Probe) check() error {
	if !p.connected {
		return ErrNotConnected
	}
	return nil
}

// Connect will check that a probe is reachable by reading the device
// version through it
func (p *Probe) Connect(serial string) error {
	if serial != "" {
		if _, err := strconv.ParseUint(serial, 10, 32); err != nil {
			return errors.Errorf("probe serial %q is not a number", serial)
		}
	}
	p.serial = serial

	out, err := p.run(append(p.base(), "--deviceversion")...)
	if err != nil {
		return errors.Wrap(err, "could not reach target")
	}
	p.family = strings.TrimSpace(lastLine(out))
	p.connected = true
	return nil
}

func (p *Probe) Halt() error {
	if err := p.check(); err != nil {
		return err
	}
	_, err := p.run(append(p.base(), "--halt")...)
	return err
}

// DisableProtection is a no-op: block protection only guards the internal
// flash, which this tool never touches
func (p *Probe) DisableProtection() error {
	return p.check()
}

// InitFromConfig will remember the QSPI ini file and take the flash size
// from its MemSize key
func (p *Probe) InitFromConfig(path string) error {
	if err := p.check(); err != nil {
		return err
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return errors.Wrap(err, "could not load qspi config")
	}

	key, err := findKey(cfg, "MemSize")
	if err != nil {
		return err
	}
	size, err := strconv.ParseUint(key, 0, 32)
	if err != nil {
		return errors.Wrapf(err, "MemSize %q", key)
	}

	p.qspiIni = path
	p.memSize = uint32(size)
	return nil
}

func findKey(cfg *ini.File, name string) (string, error) {
	for _, section := range cfg.Sections() {
		if section.HasKey(name) {
			return section.Key(name).String(), nil
		}
	}
	return "", ErrNoMemSize
}

func (p *Probe) DeviceFamily() string {
	if p.family != "" {
		return p.family
	}
	return p.config.Family.String()
}

func (p *Probe) ConnectedSerial() string {
	if p.serial == "" {
		return "auto"
	}
	return p.serial
}

func (p *Probe) Size() uint32 {
	return p.memSize
}

// Read will read n bytes of QSPI flash through the XIP window
func (p *Probe) Read(addr, n uint32) ([]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	start := p.config.XIPBase + addr
	args := append(p.qspiArgs(), "--memrd", fmt.Sprintf("0x%08X", start), "--n", strconv.FormatUint(uint64(n), 10))
	out, err := p.run(args...)
	if err != nil {
		return nil, err
	}

	bs, err := parseMemrd(out, start, n)
	if err != nil {
		return nil, errors.Wrapf(err, "memrd 0x%08X", start)
	}
	return bs, nil
}

// parseMemrd will decode nrfjprog --memrd output. Each line is an address,
// a colon, up to four little endian 32-bit words and an ascii column:
//
//	0x12000000: 55555555 55555555 FFFFFFFF FFFFFFFF   |UUUUUUUU........|
func parseMemrd(out []byte, start, n uint32) ([]byte, error) {
	bs := make([]byte, 0, n)
	next := start

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		addrField, rest, ok := strings.Cut(line, ":")
		if !ok || !strings.HasPrefix(addrField, "0x") {
			continue
		}
		addr, err := strconv.ParseUint(addrField, 0, 32)
		if err != nil {
			continue
		}
		if uint32(addr) != next {
			return nil, errors.Errorf("unexpected line address 0x%08X, want 0x%08X", addr, next)
		}

		if i := strings.IndexByte(rest, '|'); i >= 0 {
			rest = rest[:i]
		}
		for _, field := range strings.Fields(rest) {
			w, err := strconv.ParseUint(field, 16, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "word %q", field)
			}
			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], uint32(w))
			bs = append(bs, word[:]...)
			next += 4
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if uint32(len(bs)) < n {
		return nil, errors.Errorf("got %d of %d byte(s)", len(bs), n)
	}
	return bs[:n], nil
}

// Write will program data at addr from an Intel HEX image
func (p *Probe) Write(addr uint32, data []byte) error {
	if err := p.check(); err != nil {
		return err
	}
	return p.program(addr, data)
}

// Erase will erase the whole device with --qspieraseall, or a single sector
// by programming an erased sector with --qspisectorerase
func (p *Probe) Erase(addr uint32, mode flash.EraseMode) error {
	if err := p.check(); err != nil {
		return err
	}

	if mode == flash.EraseAll {
		_, err := p.run(append(p.qspiArgs(), "--qspieraseall")...)
		return err
	}

	sector := bytes.Repeat([]byte{0xff}, int(flash.BlockSize))
	return p.program(addr-addr%flash.BlockSize, sector, "--qspisectorerase")
}

func (p *Probe) program(addr uint32, data []byte, extra ...string) error {
	path, err := p.writeHex(p.config.XIPBase+addr, data)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	args := append(p.qspiArgs(), "--program", path)
	_, err = p.run(append(args, extra...)...)
	return err
}

// writeHex will save data at addr into a temporary Intel HEX file
func (p *Probe) writeHex(addr uint32, data []byte) (string, error) {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, data); err != nil {
		return "", errors.Wrap(err, "could not build hex image")
	}

	f, err := os.CreateTemp(p.config.TempDir, "nrf-memory-*.hex")
	if err != nil {
		return "", errors.Wrap(err, "could not create hex image")
	}
	defer f.Close()

	if err := mem.DumpIntelHex(f, 16); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "could not write hex image")
	}
	return f.Name(), nil
}

// Close will let the target run again
func (p *Probe) Close() error {
	if !p.connected {
		return nil
	}
	p.connected = false
	_, err := p.run(append(p.base(), "--run")...)
	return err
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}
