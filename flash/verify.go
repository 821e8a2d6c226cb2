package flash

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TestFull will erase the whole device and then program, settle, read back
// and compare every block in turn. It stops at the first block that does not
// verify. startAddr only offsets the reported failure address.
func (t *Target) TestFull(p Pattern, startAddr uint32) error {
	if err := t.requireOpen("full test"); err != nil {
		return err
	}

	size := t.probe.Size()
	nblocks := size / BlockSize
	if nblocks == 0 {
		return configError("full test", errors.Errorf("device reports %d byte(s) of flash", size))
	}

	expected := p.Block()

	logrus.Info("erasing whole external flash area")
	if err := t.probe.Erase(0, EraseAll); err != nil {
		return &Error{Kind: KindErase, Op: "erase all", Err: err}
	}

	t.reportProgress(0, nblocks)
	for i := uint32(0); i < nblocks; i++ {
		testAddr := i * BlockSize
		if err := t.programAndVerify(testAddr, expected, startAddr+testAddr, true); err != nil {
			return err
		}
		t.reportProgress(i+1, nblocks)
	}

	logrus.WithField("blocks", nblocks).Info("full test passed")
	return nil
}

// TestSampled will erase, program, read back and compare count blocks
// spread over the region, stopping at the first failure
func (t *Target) TestSampled(p Pattern, region Region, count uint32) error {
	if err := t.requireOpen("sampled test"); err != nil {
		return err
	}
	if err := region.Validate(); err != nil {
		return err
	}

	addrs, err := SampleAddresses(region.Start, region.Size, count)
	if err != nil {
		return err
	}

	expected := p.Block()

	t.reportProgress(0, count)
	for i, addr := range addrs {
		if err := t.probe.Erase(addr, EraseBlock); err != nil {
			return &Error{Kind: KindErase, Op: fmt.Sprintf("erase sample %d", i+1), Addr: addr, Err: err}
		}
		t.settle()

		if err := t.programAndVerify(addr, expected, region.Start+addr, false); err != nil {
			return err
		}
		logrus.Debugf("(%d) 4KB verification success at %08x", i+1, addr)
		t.reportProgress(uint32(i+1), count)
	}

	logrus.WithField("samples", count).Info("sampled test passed")
	return nil
}

// programAndVerify will write one pattern block at addr and compare what
// reads back. reportBase is the address reported for byte 0 of the block.
func (t *Target) programAndVerify(addr uint32, expected []byte, reportBase uint32, settle bool) error {
	if err := t.probe.Write(addr, expected); err != nil {
		return &Error{Kind: KindWrite, Op: "program test block", Addr: addr, Err: err}
	}
	if settle {
		t.settle()
	}

	actual, err := t.probe.Read(addr, BlockSize)
	if err != nil {
		return &Error{Kind: KindRead, Op: "read back test block", Addr: addr, Err: err}
	}

	if k := firstMismatch(expected, actual); k >= 0 {
		var got byte
		if k < len(actual) {
			got = actual[k]
		}
		return &VerificationError{
			Address:  reportBase + uint32(k),
			Expected: expected[k],
			Actual:   got,
		}
	}

	return nil
}
