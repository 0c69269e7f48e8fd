package mem

// A Device is the capability trio that connects the log engine to whatever
// actually holds the bytes: the on-chip flash peripheral on real hardware,
// or an in-memory Flash plane in tests and the inspector. Components hold a
// Device and never touch the medium any other way.
//
// The model is NOR-style flash:
//
//   - reads are unrestricted byte copies
//   - programming happens one word at a time, at word-aligned offsets,
//     and can only clear bits of the erased pattern (0xff), never set them
//   - erasing happens one page at a time and resets every byte to 0xff
//
// ENGINE                     DEVICE
//  |  Read(off, dst)          |
//  |------------------------->|  any offset, any length
//  |  Program(off, word)      |
//  |------------------------->|  one word, aligned, bits may only clear
//  |  Erase(page)             |
//  |------------------------->|  whole page back to 0xff

import "errors"

const (
	// Erased is the value of every byte in a page immediately after erase.
	Erased byte = 0xff

	// MaxWordSize bounds the programming granularity a Device may report.
	// It sizes the scratch words used when composing partial writes, so it
	// is a compile-time ceiling rather than a runtime property.
	MaxWordSize = 4
)

var (
	ErrBounds  = errors.New("access outside device range")
	ErrAlign   = errors.New("program offset not word aligned")
	ErrWord    = errors.New("program length not one word")
	ErrBits    = errors.New("program would set erased bits")
	ErrZeroLen = errors.New("zero length buffer")
)

type Device interface {
	// Read copies len(dst) bytes starting at offset into dst.
	Read(offset uint32, dst []byte) error

	// Program writes exactly one word at a word-aligned offset. Bits can
	// only move from the erased pattern toward zero; programming a byte
	// equal to the current content is always legal.
	Program(offset uint32, word []byte) error

	// Erase resets one page to the erased pattern.
	Erase(page uint16) error

	// WordSize returns the programming granularity in bytes (1, 2 or 4).
	WordSize() int
}

// Write programs an arbitrary byte range through a word-granularity Device.
//
// The range is decomposed into a possibly-partial lead word, a run of whole
// words and a possibly-partial tail word. Partial words are composed from
// existing medium bytes around the new bytes and programmed as one word:
// callers only ever overlap bytes that are still erased, or re-program
// bytes with their current value, so the one-way bit rule holds. This is
// the only place sub-word writes exist; everything above deals in whole
// marks and payloads.
func Write(d Device, offset uint32, data []byte) error {
	w := uint32(d.WordSize())
	var word [MaxWordSize]byte

	for len(data) > 0 {
		base := offset - offset%w

		// fast path: a whole word straight out of data
		if offset == base && uint32(len(data)) >= w {
			if err := d.Program(base, data[:w]); err != nil {
				return err
			}
			offset += w
			data = data[w:]
			continue
		}

		// partial word: overlay the new bytes on whatever the medium
		// holds around them
		if err := d.Read(base, word[:w]); err != nil {
			return err
		}
		n := copy(word[offset-base:w], data)
		if err := d.Program(base, word[:w]); err != nil {
			return err
		}
		offset += uint32(n)
		data = data[n:]
	}
	return nil
}
