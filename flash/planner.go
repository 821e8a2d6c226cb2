package flash

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// BlockSize is the erase and program granule of the external flash
const BlockSize uint32 = 4096

// ChunkSize is the unit used when streaming reads off the target
const ChunkSize uint32 = 10 * BlockSize

// DefaultTestCount is the number of blocks checked by a sampled test
const DefaultTestCount uint32 = 10

// SettleDelay is the wait between an erase or program and the next access
// to the same block
var SettleDelay = 100 * time.Millisecond

// Region is a span of external flash
type Region struct {
	Start uint32
	Size  uint32
}

// Validate will check that the region is usable
func (r Region) Validate() error {
	if r.Size == 0 {
		return configError("validate region", ErrEmptyRegion)
	}
	if uint64(r.Start)+uint64(r.Size) > 1<<32 {
		return configError("validate region", errors.Wrapf(ErrRegionOverflow, "%s", r))
	}
	return nil
}

// Blocks will return the number of 4 KiB blocks the region spans
func (r Region) Blocks() uint32 {
	return BlockCount(r.Size)
}

func (r Region) String() string {
	return fmt.Sprintf("0x%08X+0x%X", r.Start, r.Size)
}

// BlockCount will return the number of blocks needed to hold size bytes
func BlockCount(size uint32) uint32 {
	return ceilDiv(size, BlockSize)
}

// ChunkCount will return the number of read chunks needed for size bytes
func ChunkCount(size uint32) uint32 {
	return ceilDiv(size, ChunkSize)
}

// MinSampledSize will return the smallest region size that can hold count
// distinct sample blocks
func MinSampledSize(count uint32) uint32 {
	return count * BlockSize
}

// SampleAddresses will pick count block aligned addresses inside the region
// for a sampled test. The first and last block are always included; the ones
// in between sit at position*i blocks, which leans towards the end of the
// region rather than being evenly spaced.
func SampleAddresses(regionStart, size, count uint32) ([]uint32, error) {
	blocks := BlockCount(size)
	if count == 0 || blocks < count {
		return nil, configError("plan samples", errors.Wrapf(ErrRegionTooSmall,
			"set the size to at least 0x%X", MinSampledSize(max(count, 1))))
	}

	position := blocks / count
	addrs := make([]uint32, 0, count)

	for i := uint32(1); i <= count; i++ {
		switch {
		case i == 1:
			addrs = append(addrs, regionStart)
		case i == count:
			addrs = append(addrs, regionStart+blocks*BlockSize-BlockSize)
		default:
			addrs = append(addrs, regionStart+position*i*BlockSize-BlockSize)
		}
	}

	return addrs, nil
}
