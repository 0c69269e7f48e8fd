package fluffer

// A Config describes one instance's slice of the medium. Two instances with
// disjoint page ranges on the same device are independent.
type Config struct {
	PageSize      uint16 // erase granularity, bytes; multiple of WordSize
	WordSize      uint8  // programming granularity, bytes (1, 2 or 4)
	StartPage     uint16 // first allocated page
	PagesPerBlock uint8
	Blocks        uint8  // at least 2, so rotation always has a target
	ElementSize   uint16 // payload bytes per entry
}

// Address arithmetic. All of it is derived from Config; nothing below ever
// touches the device. Offsets are absolute device offsets in bytes.
//
// |<------------- block b ------------->|
// | brand |mark|payload|mark|payload|...|
//  ^ W      W    E_sz
//
// A block's first word is its brand; entry i's payload sits one brand and
// one mark past the block base plus i whole slots.

func (c Config) blockSize() uint32 {
	return uint32(c.PageSize) * uint32(c.PagesPerBlock)
}

func (c Config) startAddress() uint32 {
	return uint32(c.StartPage) * uint32(c.PageSize)
}

func (c Config) blockAddress(b uint8) uint32 {
	return c.startAddress() + uint32(b)*c.blockSize()
}

func (c Config) brandAddress(b uint8) uint32 {
	return c.blockAddress(b)
}

func (c Config) entryAddress(b uint8, id uint16) uint32 {
	w := uint32(c.WordSize)
	return c.blockAddress(b) + 2*w + uint32(id)*(w+uint32(c.ElementSize))
}

func (c Config) markAddress(b uint8, id uint16) uint32 {
	return c.entryAddress(b, id) - uint32(c.WordSize)
}

// entries is the slot capacity of one block: whatever fits after the brand.
func (c Config) entries() uint16 {
	w := uint32(c.WordSize)
	return uint16((c.blockSize() - w) / (uint32(c.ElementSize) + w))
}

func (c Config) blockStartPage(b uint8) uint16 {
	return c.StartPage + uint16(c.PagesPerBlock)*uint16(b)
}

// pages is the total number of allocated pages across all blocks.
func (c Config) pages() uint16 {
	return uint16(c.Blocks) * uint16(c.PagesPerBlock)
}

func (c Config) validate() error {
	if c.Blocks < 2 || c.PageSize == 0 || c.PagesPerBlock == 0 {
		return ErrConfig
	}
	switch c.WordSize {
	case 1, 2, 4:
	default:
		return ErrConfig
	}
	if c.PageSize%uint16(c.WordSize) != 0 {
		return ErrConfig
	}
	if c.ElementSize == 0 || c.ElementSize > maxElementSize {
		return ErrConfig
	}
	if c.entries() < 1 {
		return ErrConfig
	}
	return nil
}
