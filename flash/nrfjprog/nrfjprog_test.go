package nrfjprog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"

	"github.com/synthread/nrf-memory/flash"
)

// fakeRunner records invocations and answers them through respond
type fakeRunner struct {
	calls   [][]string
	respond func(args []string) ([]byte, error)
}

func (r *fakeRunner) Run(args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string(nil), args...))
	if r.respond == nil {
		return nil, nil
	}
	return r.respond(args)
}

func (r *fakeRunner) last() []string {
	return r.calls[len(r.calls)-1]
}

func argValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func writeIni(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qspi.ini")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const testIni = `[DEFAULT_CONFIGURATION]
MemSize = 0x800000
ReadMode = READ4IO
WriteMode = PP4IO
`

// connectedProbe will return a probe that has connected and loaded testIni
func connectedProbe(t *testing.T, family flash.Family, r *fakeRunner) *Probe {
	t.Helper()
	p, err := New(Config{Family: family, Runner: r, TempDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Connect("682000123"); err != nil {
		t.Fatal(err)
	}
	if err := p.InitFromConfig(writeIni(t, testIni)); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewRejectsFamilyWithoutQSPI(t *testing.T) {
	if _, err := New(Config{Family: flash.FamilyNRF91}); err == nil {
		t.Error("NRF91 should be rejected")
	}
	p, err := New(Config{Family: flash.FamilyNRF91, XIPBase: 0x20000000})
	if err != nil || p.config.XIPBase != 0x20000000 {
		t.Errorf("explicit XIP base not honoured: %v", err)
	}
}

func TestConnect(t *testing.T) {
	r := &fakeRunner{respond: func(args []string) ([]byte, error) {
		return []byte("Connecting...\nNRF52840_xxAA_REV2\n"), nil
	}}
	p, _ := New(Config{Family: flash.FamilyNRF52, Runner: r})

	if err := p.Connect("682000123"); err != nil {
		t.Fatal(err)
	}
	want := "--family NRF52 --snr 682000123 --deviceversion"
	if got := strings.Join(r.last(), " "); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
	if p.DeviceFamily() != "NRF52840_xxAA_REV2" {
		t.Errorf("family = %q", p.DeviceFamily())
	}
	if p.ConnectedSerial() != "682000123" {
		t.Errorf("serial = %q", p.ConnectedSerial())
	}
}

func TestConnectAutoFamily(t *testing.T) {
	r := &fakeRunner{}
	p, _ := New(Config{Runner: r})

	if err := p.Connect(""); err != nil {
		t.Fatal(err)
	}
	if hasArg(r.last(), "--family") || hasArg(r.last(), "--snr") {
		t.Errorf("auto connect should not pin family or serial: %v", r.last())
	}
	if p.ConnectedSerial() != "auto" {
		t.Errorf("serial = %q", p.ConnectedSerial())
	}
}

func TestConnectErrors(t *testing.T) {
	r := &fakeRunner{}
	p, _ := New(Config{Runner: r})
	if err := p.Connect("J-Link"); err == nil {
		t.Error("non numeric serial accepted")
	}
	if len(r.calls) != 0 {
		t.Error("nrfjprog run for an invalid serial")
	}

	r.respond = func([]string) ([]byte, error) { return nil, errors.New("no debugger") }
	if err := p.Connect(""); err == nil {
		t.Error("connect should fail when nrfjprog fails")
	}
	if err := p.Halt(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("halt after failed connect: %v", err)
	}
}

func TestInitFromConfig(t *testing.T) {
	p := connectedProbe(t, flash.FamilyNRF52, &fakeRunner{})
	if p.Size() != 0x800000 {
		t.Errorf("size = 0x%X", p.Size())
	}

	for name, body := range map[string]string{
		"missing key": "[DEFAULT_CONFIGURATION]\nReadMode = READ4IO\n",
		"bad value":   "[DEFAULT_CONFIGURATION]\nMemSize = lots\n",
	} {
		if err := p.InitFromConfig(writeIni(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if err := p.InitFromConfig(filepath.Join(t.TempDir(), "none.ini")); err == nil {
		t.Error("missing ini accepted")
	}
}

func TestParseMemrd(t *testing.T) {
	out := []byte(`Parsing parameters.
0x12000000: 04030201 08070605 FFFFFFFF 55555555   |................|
0x12000010: 0D0C0B0A                              |....|
`)
	bs, err := parseMemrd(out, 0x12000000, 19)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 0xff, 0xff, 0xff, 0xff, 0x55, 0x55, 0x55, 0x55,
		0x0A, 0x0B, 0x0C,
	}
	if !bytes.Equal(bs, want) {
		t.Errorf("got % X", bs)
	}

	if _, err := parseMemrd(out, 0x12000000, 32); err == nil {
		t.Error("short output accepted")
	}
	if _, err := parseMemrd(out, 0x12001000, 4); err == nil {
		t.Error("address mismatch accepted")
	}
	if _, err := parseMemrd([]byte("0x12000000: XYZ\n"), 0x12000000, 4); err == nil {
		t.Error("bad word accepted")
	}
}

func TestRead(t *testing.T) {
	r := &fakeRunner{}
	p := connectedProbe(t, flash.FamilyNRF53, r)

	r.respond = func(args []string) ([]byte, error) {
		return []byte("0x10001000: 44332211 88776655\n"), nil
	}
	bs, err := p.Read(0x1000, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bs, []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}) {
		t.Errorf("got % X", bs)
	}

	args := r.last()
	if argValue(args, "--memrd") != "0x10001000" || argValue(args, "--n") != "8" {
		t.Errorf("args = %v", args)
	}
	if argValue(args, "--qspiini") == "" {
		t.Error("read did not pass the qspi ini")
	}
}

// hexCapture will return a responder that decodes the image given to
// --program before the probe removes it
func hexCapture(t *testing.T, got **gohex.Memory) func([]string) ([]byte, error) {
	return func(args []string) ([]byte, error) {
		path := argValue(args, "--program")
		if path == "" {
			return nil, nil
		}
		f, err := os.Open(path)
		if err != nil {
			t.Errorf("open image: %v", err)
			return nil, err
		}
		defer f.Close()

		mem := gohex.NewMemory()
		if err := mem.ParseIntelHex(f); err != nil {
			t.Errorf("parse image: %v", err)
			return nil, err
		}
		*got = mem
		return nil, nil
	}
}

// imageBytes will flatten n bytes at addr out of the image's segments
func imageBytes(mem *gohex.Memory, addr, n uint32) []byte {
	bs := make([]byte, n)
	for _, seg := range mem.GetDataSegments() {
		for i, b := range seg.Data {
			a := seg.Address + uint32(i)
			if a >= addr && a < addr+n {
				bs[a-addr] = b
			}
		}
	}
	return bs
}

func TestWriteProgramsHexImage(t *testing.T) {
	r := &fakeRunner{}
	p := connectedProbe(t, flash.FamilyNRF52, r)

	var image *gohex.Memory
	r.respond = hexCapture(t, &image)

	data := []byte("qspi payload")
	if err := p.Write(0x2000, data); err != nil {
		t.Fatal(err)
	}
	if image == nil {
		t.Fatal("no image programmed")
	}
	if got := imageBytes(image, 0x12002000, uint32(len(data))); !bytes.Equal(got, data) {
		t.Errorf("image holds %q", got)
	}

	path := argValue(r.last(), "--program")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("temporary image %s not removed", path)
	}
	if hasArg(r.last(), "--qspisectorerase") {
		t.Error("plain write should not erase")
	}
}

func TestEraseBlock(t *testing.T) {
	r := &fakeRunner{}
	p := connectedProbe(t, flash.FamilyNRF52, r)

	var image *gohex.Memory
	r.respond = hexCapture(t, &image)

	if err := p.Erase(0x3010, flash.EraseBlock); err != nil {
		t.Fatal(err)
	}
	if !hasArg(r.last(), "--qspisectorerase") {
		t.Errorf("args = %v", r.last())
	}
	got := imageBytes(image, 0x12003000, flash.BlockSize)
	if !bytes.Equal(got, bytes.Repeat([]byte{0xff}, int(flash.BlockSize))) {
		t.Error("sector image should be erased and block aligned")
	}
}

func TestEraseAll(t *testing.T) {
	r := &fakeRunner{}
	p := connectedProbe(t, flash.FamilyNRF52, r)

	if err := p.Erase(0, flash.EraseAll); err != nil {
		t.Fatal(err)
	}
	if !hasArg(r.last(), "--qspieraseall") || argValue(r.last(), "--qspiini") == "" {
		t.Errorf("args = %v", r.last())
	}
}

func TestCloseResumesTarget(t *testing.T) {
	r := &fakeRunner{}
	p := connectedProbe(t, flash.FamilyNRF52, r)

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(r.last()); got != "[--family NRF52 --snr 682000123 --run]" {
		t.Errorf("args = %s", got)
	}

	n := len(r.calls)
	p.Close()
	if len(r.calls) != n {
		t.Error("second Close ran nrfjprog")
	}
}
