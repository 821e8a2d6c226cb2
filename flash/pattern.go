package flash

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultPattern is the word written by the test when none is given
const DefaultPattern Pattern = 0x55555555

// Pattern is a test value of one to four bytes, right aligned in a 32-bit
// word
type Pattern uint32

// ParsePattern will parse a one to four byte hex value, with or without a
// 0x prefix
func ParsePattern(s string) (Pattern, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if digits == "" || len(digits) > 8 {
		return 0, configError("parse pattern", errors.Errorf("pattern %q must be 1 to 4 hex bytes", s))
	}

	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, configError("parse pattern", errors.Wrapf(err, "pattern %q", s))
	}

	return Pattern(v), nil
}

// Bytes will return the big endian representation that fills one 4-byte
// slot of a test block
func (p Pattern) Bytes() []byte {
	bs := make([]byte, 4)
	binary.BigEndian.PutUint32(bs, uint32(p))
	return bs
}

// Block will return a BlockSize buffer with the pattern tiled across every
// 4-byte slot
func (p Pattern) Block() []byte {
	word := p.Bytes()
	bs := make([]byte, BlockSize)
	for off := 0; off < len(bs); off += len(word) {
		copy(bs[off:], word)
	}
	return bs
}

func (p Pattern) String() string {
	return fmt.Sprintf("0x%08X", uint32(p))
}
