package flash

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// WritePayloadFromFile will program the requested file to the flash at the
// provided address. The file is read in full before anything is erased.
func (t *Target) WritePayloadFromFile(filePath string, addr uint32) error {
	bs, err := os.ReadFile(filePath)
	if err != nil {
		return &Error{Kind: KindFile, Op: "read input", Err: errors.Wrap(err, filePath)}
	}
	return t.WritePayload(bs, addr)
}

// WritePayload will erase the blocks covering the payload plus one more and
// then program the payload in a single write. A failure part way leaves the
// range partially erased or programmed.
func (t *Target) WritePayload(bs []byte, addr uint32) error {
	if err := t.requireOpen("write"); err != nil {
		return err
	}
	if len(bs) == 0 {
		return configError("write", ErrEmptyPayload)
	}

	nblocks := BlockCount(uint32(len(bs)))

	logrus.Infof("erasing %d block(s) in flash", nblocks)
	// one extra block past the payload as a margin for the trailing partial block
	for i := uint32(0); i < nblocks+1; i++ {
		blockAddr := addr + i*BlockSize
		if err := t.probe.Erase(blockAddr, EraseBlock); err != nil {
			return &Error{Kind: KindErase, Op: fmt.Sprintf("erase block %d", i), Addr: blockAddr, Err: err}
		}
		logrus.Debugf("erase: %08x", blockAddr)
	}

	logrus.Infof("writing %d byte(s)", len(bs))
	if err := t.probe.Write(addr, bs); err != nil {
		return &Error{Kind: KindWrite, Op: "program payload", Addr: addr, Err: err}
	}

	return nil
}
