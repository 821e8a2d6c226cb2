package flash

import (
	"strings"

	"github.com/pkg/errors"
)

// EraseMode selects how much of the flash an erase touches
type EraseMode int

const (
	// EraseBlock erases the single 4 KiB block containing the address
	EraseBlock EraseMode = iota
	// EraseAll erases the whole device, the address is ignored
	EraseAll
)

func (m EraseMode) String() string {
	if m == EraseAll {
		return "erase-all"
	}
	return "erase-4k"
}

// Family is the target device family handed to the probe
type Family int

const (
	FamilyAuto Family = iota
	FamilyNRF52
	FamilyNRF53
	FamilyNRF91
)

var familyNames = map[Family]string{
	FamilyAuto:  "AUTO",
	FamilyNRF52: "NRF52",
	FamilyNRF53: "NRF53",
	FamilyNRF91: "NRF91",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseFamily will map a family name onto a Family. An empty string selects
// FamilyAuto; anything unrecognised is an error.
func ParseFamily(s string) (Family, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return FamilyAuto, nil
	}
	for f, n := range familyNames {
		if n == name {
			return f, nil
		}
	}
	return FamilyAuto, configError("parse family", errors.Errorf("unknown device family %q (want NRF52, NRF53, NRF91 or AUTO)", s))
}

// Probe is the debug probe capability used to reach the target's QSPI flash.
// Implementations are driven from a single goroutine and every call blocks
// until the operation is complete on the target.
type Probe interface {
	// Connect will attach to the probe with the given serial number, or to
	// whichever probe is available when serial is empty
	Connect(serial string) error
	Halt() error
	// DisableProtection will clear any block protection on the target
	DisableProtection() error
	// InitFromConfig will configure the QSPI peripheral from the given file
	InitFromConfig(path string) error

	DeviceFamily() string
	ConnectedSerial() string

	Read(addr, n uint32) ([]byte, error)
	Write(addr uint32, data []byte) error
	Erase(addr uint32, mode EraseMode) error
	// Size will return the size of the external flash in bytes
	Size() uint32

	Close() error
}
