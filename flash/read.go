package flash

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReadResult describes a completed read. Data is only populated when the
// read was asked to retain what it streamed.
type ReadResult struct {
	Transferred uint32
	Data        []byte
}

// ReadRegion will stream the region out to dst one chunk at a time. Each
// chunk is written to dst before the next one is requested from the probe.
// On failure the bytes already written stay in dst.
func (t *Target) ReadRegion(dst io.Writer, region Region, retain bool) (ReadResult, error) {
	var res ReadResult

	if err := t.requireOpen("read"); err != nil {
		return res, err
	}
	if err := region.Validate(); err != nil {
		return res, err
	}

	if retain {
		res.Data = make([]byte, 0, region.Size)
	}

	logrus.WithFields(logrus.Fields{
		"region": region.String(),
		"chunks": ChunkCount(region.Size),
	}).Debug("read start")

	t.reportProgress(0, region.Size)

	for res.Transferred < region.Size {
		addr := region.Start + res.Transferred
		n := min(ChunkSize, region.Size-res.Transferred)

		bs, err := t.probe.Read(addr, n)
		if err == nil && uint32(len(bs)) != n {
			err = errors.Errorf("short read: got %d of %d byte(s)", len(bs), n)
		}
		if err != nil {
			return res, &ReadError{Addr: addr, Transferred: res.Transferred, Err: err}
		}

		if _, err := dst.Write(bs); err != nil {
			return res, &Error{Kind: KindFile, Op: "write output", Err: err}
		}
		if retain {
			res.Data = append(res.Data, bs...)
		}

		res.Transferred += n
		logrus.Debugf("read chunk @ %08x [l=%d]", addr, n)
		t.reportProgress(res.Transferred, region.Size)
	}

	return res, nil
}
