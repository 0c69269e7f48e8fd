package fluffer

import "fluffer/mem"

// A transfer describes the entries migrating between blocks during
// clean-up.
type transfer struct {
	count uint16 // entries to move
	srcID uint16 // first source slot
	dstID uint16 // first destination slot
	src   uint8  // source block
	dst   uint8  // destination block
}

func (f *Fluffer) nextBlock() uint8 {
	return (f.main + 1) % f.Cfg.Blocks
}

// cleanUp rotates the queue into the next block: live slots are copied over
// as fresh entries, the next block is branded, the old one erased.
//
// Crash windows, in order: before the brand, the old block is still the
// only branded one and recovery resumes on it (the partial copy sits in an
// unbranded block and is erased at the start of the next rotation into it).
// Between brand and erase, two blocks are branded and recovery reformats --
// the documented data-loss window. During the erase, recovery adopts the
// new block and the next rotation finishes the erase.
func (f *Fluffer) cleanUp() error {
	t := transfer{
		src:   f.main,
		srcID: f.head,
		dst:   f.nextBlock(),
		dstID: 0,
		count: f.tail - f.head,
	}

	// a full block with no consumer progress still has to make room:
	// skip the oldest entry instead of migrating everything
	if t.count == f.size {
		t.srcID++
		t.count--
	}

	// normally the destination is already erased; after a rotation that
	// lost power before branding it holds a partial copy, and erasing
	// here keeps the programs below legal
	if err := f.eraseBlock(t.dst); err != nil {
		return err
	}
	if err := f.copyEntries(&t); err != nil {
		return err
	}
	if err := f.brand(t.dst); err != nil {
		return err
	}
	if err := f.eraseBlock(t.src); err != nil {
		return err
	}

	f.main = t.dst
	f.head = 0
	f.tail = t.count
	return nil
}

// copyEntries moves count payloads one slot at a time through the scratch
// buffer. Marks are not copied: migrated entries land live.
func (f *Fluffer) copyEntries(t *transfer) error {
	payload := f.scratch[:f.Cfg.ElementSize]
	for k := uint16(0); k < t.count; k++ {
		if err := f.Mem.Read(f.Cfg.entryAddress(t.src, t.srcID+k), payload); err != nil {
			return err
		}
		if err := mem.Write(f.Mem, f.Cfg.entryAddress(t.dst, t.dstID+k), payload); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fluffer) eraseBlock(b uint8) error {
	start := f.Cfg.blockStartPage(b)
	for p := uint16(0); p < uint16(f.Cfg.PagesPerBlock); p++ {
		if err := f.Mem.Erase(start + p); err != nil {
			return err
		}
	}
	return nil
}
