// Package fluffer implements a persistent, bounded FIFO of fixed-size
// records over write-once / block-erase memory (NOR-style flash).
//
// The allocated region is divided into blocks of whole pages. Exactly one
// block -- the main buffer -- receives writes; its first word is programmed
// to the all-zero brand so the instance can be found again after a reboot.
// Records are appended as (mark, payload) slots and consumed by programming
// the mark word; nothing is ever rewritten in place. When the main buffer
// fills, the live slots migrate to the next block round-robin and the old
// block is erased.
//
// There is no metadata region: head, tail and the main buffer index are
// reconstructed from the raw bytes of the medium at Initialize. A crash at
// any point leaves a state Initialize can recover (a crash between branding
// the new block and erasing the old one loses the queue to a reformat; see
// Initialize).
//
// The engine is single-threaded and allocation-free: callers serialize
// access, and the only buffer is a small instance-owned scratch array.
package fluffer

import (
	"errors"

	"fluffer/mask"
	"fluffer/mem"
)

const (
	// cleanByte is what erased memory reads back.
	cleanByte = mem.Erased

	// entryMarked is the mark byte of a consumed slot. Being the
	// complement of the erased byte, programming it never sets a bit.
	entryMarked = ^cleanByte

	// mainBufferBrand is the byte pattern of the active block's brand
	// word. Anything else, in particular the erased pattern, is an
	// inactive block.
	mainBufferBrand byte = 0x00

	// firstBlock is branded after a format.
	firstBlock = 0

	// maxElementSize bounds payloads so the scratch array has a
	// compile-time size.
	maxElementSize = 1024
)

var (
	ErrNil    = errors.New("nil argument")
	ErrConfig = errors.New("invalid memory configuration")
	ErrEmpty  = errors.New("no unread entries")
	ErrFull   = errors.New("buffer is full")
	ErrBuffer = errors.New("buffer does not match element size")
)

// A Fluffer is one queue instance. Populate Mem and Cfg, call Initialize,
// then use the entry operations. The exported fields are read by the
// engine on every call and must not change afterwards.
type Fluffer struct {
	Mem mem.Device
	Cfg Config

	// context reconstructed from the medium by Initialize
	head uint16 // oldest live slot
	tail uint16 // first empty slot
	size uint16 // slot capacity of one block
	main uint8  // block carrying the brand

	// scratch holds one mark word or one payload during scans and
	// migration; never escapes the instance
	scratch [mem.MaxWordSize + maxElementSize]byte
}

// A Reader is an ephemeral cursor over the main buffer. It advances on
// every successful ReadEntry and is never persisted. A rotation renumbers
// the slots under any outstanding Reader; re-initialize readers after a
// write that may have filled the block.
type Reader struct {
	ID uint16
}

// Initialize validates the configuration and reconstructs head, tail and
// the main buffer from the raw medium. It is deterministic and idempotent,
// and writes nothing on the happy path.
//
// When no block carries the brand (first use) or several do (torn
// rotation), every allocated page is erased and block 0 is branded; in the
// corrupt case the previous content is lost.
func (f *Fluffer) Initialize() error {
	if f == nil || f.Mem == nil {
		return ErrNil
	}
	if err := f.Cfg.validate(); err != nil {
		return err
	}
	if int(f.Cfg.WordSize) != f.Mem.WordSize() {
		return ErrConfig
	}

	count, last, err := f.mainBufferBlocks()
	if err != nil {
		return err
	}
	if count == 1 {
		f.main = last
	} else if err := f.format(); err != nil {
		return err
	}

	f.size = f.Cfg.entries()
	if f.head, err = f.findHead(); err != nil {
		return err
	}
	if f.tail, err = f.findTail(); err != nil {
		return err
	}
	return nil
}

// InitReader points r at the oldest live entry.
func (f *Fluffer) InitReader(r *Reader) error {
	if f == nil || r == nil {
		return ErrNil
	}
	r.ID = f.head
	return nil
}

// IsEmpty reports whether no live entries remain.
func (f *Fluffer) IsEmpty() bool {
	return f.head == f.tail
}

// IsFull reports whether the main buffer has no empty slot left. It is
// advisory: the next WriteEntry still succeeds by rotating first.
func (f *Fluffer) IsFull() bool {
	return f.tail == f.size
}

// ReadEntry copies the payload under r into dst and advances r. Marks are
// not examined: readers see slots in written order, including slots already
// consumed through MarkEntry.
func (f *Fluffer) ReadEntry(r *Reader, dst []byte) error {
	if f == nil || r == nil || dst == nil {
		return ErrNil
	}
	if len(dst) < int(f.Cfg.ElementSize) {
		return ErrBuffer
	}
	if f.IsEmpty() || r.ID >= f.tail {
		return ErrEmpty
	}
	if err := f.Mem.Read(f.Cfg.entryAddress(f.main, r.ID), dst[:f.Cfg.ElementSize]); err != nil {
		return err
	}
	r.ID++
	return nil
}

// MarkEntry consumes the oldest live entry by programming its mark word.
// A crash after the program but before the in-memory increment is harmless:
// recovery walks head past the marked slot.
func (f *Fluffer) MarkEntry() error {
	if f == nil {
		return ErrNil
	}
	if f.IsEmpty() {
		return ErrEmpty
	}
	w := int(f.Cfg.WordSize)
	mask.Fill(f.scratch[:w], entryMarked)
	if err := mem.Write(f.Mem, f.Cfg.markAddress(f.main, f.head), f.scratch[:w]); err != nil {
		return err
	}
	f.head++
	return nil
}

// WriteEntry appends one payload. The slot's mark stays erased -- a fresh
// slot is live by definition, so a single program is the whole commit. When
// the write fills the block, clean-up rotates to the next block before
// returning.
func (f *Fluffer) WriteEntry(data []byte) error {
	if f == nil || data == nil {
		return ErrNil
	}
	if len(data) != int(f.Cfg.ElementSize) {
		return ErrBuffer
	}

	// a full block at this point means an earlier rotation failed part
	// way (or recovery found a block that filled right before a crash);
	// rotate now so the write below has an empty slot
	if f.tail == f.size {
		if err := f.cleanUp(); err != nil {
			return err
		}
	}

	if err := mem.Write(f.Mem, f.Cfg.entryAddress(f.main, f.tail), data); err != nil {
		return err
	}
	f.tail++

	if f.tail == f.size {
		return f.cleanUp()
	}
	return nil
}

// mainBufferBlocks scans every block's brand word, returning how many carry
// the main-buffer brand and the index of the last one that does.
func (f *Fluffer) mainBufferBlocks() (count int, last uint8, err error) {
	for b := uint8(0); b < f.Cfg.Blocks; b++ {
		main, err := f.isMainBuffer(b)
		if err != nil {
			return 0, 0, err
		}
		if main {
			count++
			last = b
		}
	}
	return count, last, nil
}

func (f *Fluffer) isMainBuffer(b uint8) (bool, error) {
	w := int(f.Cfg.WordSize)
	if err := f.Mem.Read(f.Cfg.brandAddress(b), f.scratch[:w]); err != nil {
		return false, err
	}
	return mask.Filled(f.scratch[:w], mainBufferBrand), nil
}

// isMarked reports whether slot id's mark word is fully programmed.
func (f *Fluffer) isMarked(id uint16) (bool, error) {
	w := int(f.Cfg.WordSize)
	if err := f.Mem.Read(f.Cfg.markAddress(f.main, id), f.scratch[:w]); err != nil {
		return false, err
	}
	return mask.Filled(f.scratch[:w], entryMarked), nil
}

// isEmptySlot reports whether slot id is unmarked and its payload is still
// the erased pattern.
func (f *Fluffer) isEmptySlot(id uint16) (bool, error) {
	marked, err := f.isMarked(id)
	if err != nil || marked {
		return false, err
	}
	esz := int(f.Cfg.ElementSize)
	if err := f.Mem.Read(f.Cfg.entryAddress(f.main, id), f.scratch[:esz]); err != nil {
		return false, err
	}
	return mask.Filled(f.scratch[:esz], cleanByte), nil
}

// findHead walks the main buffer for the first unmarked slot.
func (f *Fluffer) findHead() (uint16, error) {
	for id := uint16(0); id < f.size; id++ {
		marked, err := f.isMarked(id)
		if err != nil {
			return 0, err
		}
		if !marked {
			return id, nil
		}
	}
	return 0, nil
}

// findTail walks the main buffer for the first empty slot. A block with no
// empty slot is full (it filled right before a crash cut the rotation
// short), so the scan yields size and the next write rotates first.
func (f *Fluffer) findTail() (uint16, error) {
	for id := uint16(0); id < f.size; id++ {
		empty, err := f.isEmptySlot(id)
		if err != nil {
			return 0, err
		}
		if empty {
			return id, nil
		}
	}
	return f.size, nil
}

// format prepares the allocated region for first use: erase everything,
// brand block 0.
func (f *Fluffer) format() error {
	for p := uint16(0); p < f.Cfg.pages(); p++ {
		if err := f.Mem.Erase(f.Cfg.StartPage + p); err != nil {
			return err
		}
	}
	if err := f.brand(firstBlock); err != nil {
		return err
	}
	f.main = firstBlock
	return nil
}

// brand programs block b's first word with the main-buffer pattern.
func (f *Fluffer) brand(b uint8) error {
	w := int(f.Cfg.WordSize)
	mask.Fill(f.scratch[:w], mainBufferBrand)
	return mem.Write(f.Mem, f.Cfg.brandAddress(b), f.scratch[:w])
}
