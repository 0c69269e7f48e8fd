package mem

import "fluffer/mask"

// An Op identifies a mutating device operation, for fault hooks.
type Op int

const (
	OpProgram Op = iota
	OpErase
)

// A Flash is an in-memory Device: a flat plane of pages obeying the same
// rules as the real peripheral. Tests and the inspector run against it.
//
// Beyond geometry and bounds it enforces the one rule real flash enforces
// physically: a program can only clear bits. Every byte written must be a
// bitwise subset of the byte it overwrites, otherwise the program fails
// with ErrBits -- an engine bug that silently "works" on a forgiving fake
// would brick on hardware.
type Flash struct {
	// Hook, when non-nil, runs before every Program and Erase; returning
	// an error aborts the operation without touching the plane. Crash
	// tests use it to cut power at an exact offset. For OpErase the
	// offset is the page index.
	Hook func(op Op, offset uint32) error

	plane    []byte
	pageSize int
	wordSize int
}

// NewFlash returns an erased plane of pages*pageSize bytes with the given
// programming granularity.
func NewFlash(pages, pageSize, wordSize int) *Flash {
	f := &Flash{
		plane:    make([]byte, pages*pageSize),
		pageSize: pageSize,
		wordSize: wordSize,
	}
	mask.Fill(f.plane, Erased)
	return f
}

func (f *Flash) WordSize() int { return f.wordSize }

// Size returns the total plane size in bytes.
func (f *Flash) Size() int { return len(f.plane) }

// Bytes exposes the raw plane. Tests assert the persisted layout
// bit-exactly through it; the engine itself never sees it.
func (f *Flash) Bytes() []byte { return f.plane }

func (f *Flash) Read(offset uint32, dst []byte) error {
	if len(dst) == 0 {
		return ErrZeroLen
	}
	if int(offset)+len(dst) > len(f.plane) {
		return ErrBounds
	}
	copy(dst, f.plane[offset:])
	return nil
}

func (f *Flash) Program(offset uint32, word []byte) error {
	if len(word) != f.wordSize {
		return ErrWord
	}
	if offset%uint32(f.wordSize) != 0 {
		return ErrAlign
	}
	if int(offset)+len(word) > len(f.plane) {
		return ErrBounds
	}
	if f.Hook != nil {
		if err := f.Hook(OpProgram, offset); err != nil {
			return err
		}
	}
	for i, b := range word {
		// a set bit in b that is already cleared on the plane cannot
		// be programmed back
		if b&^f.plane[int(offset)+i] != 0 {
			return ErrBits
		}
	}
	copy(f.plane[offset:], word)
	return nil
}

func (f *Flash) Erase(page uint16) error {
	start := int(page) * f.pageSize
	if start+f.pageSize > len(f.plane) {
		return ErrBounds
	}
	if f.Hook != nil {
		if err := f.Hook(OpErase, uint32(page)); err != nil {
			return err
		}
	}
	mask.Fill(f.plane[start:start+f.pageSize], Erased)
	return nil
}
