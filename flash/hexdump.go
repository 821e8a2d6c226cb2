package flash

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const dumpRowSize = 16

var dumpSeparator = strings.Repeat("=", 62)

// DumpFileName will return the hex dump path that accompanies a read output
// file: the same path with its extension replaced by _dump.txt
func DumpFileName(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_dump.txt"
}

// HexDump will render buf as an offset/hex/ascii listing. Offsets start at
// base. name is written in the header line.
func HexDump(w io.Writer, name string, buf []byte, base uint32) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s(Binary Size:%d Byte(s))\n", name, len(buf))
	fmt.Fprintf(bw, "%s\n", dumpSeparator)

	for off := 0; off < len(buf); off += dumpRowSize {
		row := buf[off:min(off+dumpRowSize, len(buf))]

		fmt.Fprintf(bw, "%08X : ", base+uint32(off))
		for _, b := range row {
			fmt.Fprintf(bw, "%02X", b)
		}
		// the short final row keeps its ascii column roughly in line
		if len(row) < dumpRowSize {
			bw.WriteString(strings.Repeat(" ", 3*(dumpRowSize-len(row))))
		}
		bw.WriteString("  ")

		for _, b := range row {
			if b >= 0x20 && b <= 0x7e {
				bw.WriteByte(b)
			} else {
				bw.WriteByte('.')
			}
		}
		bw.WriteByte('\n')
	}

	fmt.Fprintf(bw, "\n%s\n", dumpSeparator)

	return errors.Wrap(bw.Flush(), "could not write hex dump")
}

// WriteHexDumpFile will create path and hex dump buf into it
func WriteHexDumpFile(path string, buf []byte, base uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return &Error{Kind: KindFile, Op: "create dump", Err: err}
	}
	defer f.Close()

	if err := HexDump(f, path, buf, base); err != nil {
		return &Error{Kind: KindFile, Op: "write dump", Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Kind: KindFile, Op: "close dump", Err: err}
	}
	return nil
}
