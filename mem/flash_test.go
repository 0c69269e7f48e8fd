package mem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"fluffer/mask"
)

func TestNewFlashErased(t *testing.T) {
	f := NewFlash(4, 64, 2)
	assert.Equal(t, f.Size(), 256)
	assert.Equal(t, f.WordSize(), 2)
	assert.True(t, mask.Filled(f.Bytes(), Erased))

	buf := make([]byte, 256)
	assert.NoError(t, f.Read(0, buf))
	assert.True(t, mask.Filled(buf, Erased))
}

func TestReadBounds(t *testing.T) {
	f := NewFlash(2, 64, 1)

	buf := make([]byte, 16)
	assert.NoError(t, f.Read(112, buf))
	assert.ErrorIs(t, f.Read(113, buf), ErrBounds)
	assert.ErrorIs(t, f.Read(0, nil), ErrZeroLen)
}

func TestProgramRules(t *testing.T) {
	f := NewFlash(1, 64, 2)

	// wrong word length
	assert.ErrorIs(t, f.Program(0, []byte{0x00}), ErrWord)
	assert.ErrorIs(t, f.Program(0, []byte{0x00, 0x00, 0x00}), ErrWord)

	// unaligned offset
	assert.ErrorIs(t, f.Program(1, []byte{0x00, 0x00}), ErrAlign)

	// out of range
	assert.ErrorIs(t, f.Program(64, []byte{0x00, 0x00}), ErrBounds)

	// erased -> any value is fine
	assert.NoError(t, f.Program(0, []byte{0xf0, 0x0f}))
	assert.Equal(t, f.Bytes()[:2], []byte{0xf0, 0x0f})

	// clearing more bits is fine
	assert.NoError(t, f.Program(0, []byte{0x80, 0x0e}))
	assert.Equal(t, f.Bytes()[:2], []byte{0x80, 0x0e})

	// re-programming the current value is fine (no bit changes)
	assert.NoError(t, f.Program(0, []byte{0x80, 0x0e}))

	// setting a cleared bit is not, and the plane must be untouched
	assert.ErrorIs(t, f.Program(0, []byte{0x81, 0x0e}), ErrBits)
	assert.ErrorIs(t, f.Program(0, []byte{0xff, 0xff}), ErrBits)
	assert.Equal(t, f.Bytes()[:2], []byte{0x80, 0x0e})
}

func TestErase(t *testing.T) {
	f := NewFlash(2, 64, 2)
	assert.NoError(t, f.Program(0, []byte{0x00, 0x00}))
	assert.NoError(t, f.Program(64, []byte{0x11, 0x22}))

	assert.NoError(t, f.Erase(0))
	assert.True(t, mask.Filled(f.Bytes()[:64], Erased))
	// the other page keeps its content
	assert.Equal(t, f.Bytes()[64:66], []byte{0x11, 0x22})

	assert.ErrorIs(t, f.Erase(2), ErrBounds)
}

func TestWriteAligned(t *testing.T) {
	f := NewFlash(1, 64, 2)

	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	assert.NoError(t, Write(f, 4, data))
	assert.Equal(t, f.Bytes()[4:10], data)
	assert.True(t, mask.Filled(f.Bytes()[:4], Erased))
	assert.True(t, mask.Filled(f.Bytes()[10:], Erased))
}

func TestWriteUnalignedLeadAndTail(t *testing.T) {
	f := NewFlash(1, 64, 2)

	// starts and ends mid-word: lead and tail words are composed from the
	// (still erased) neighbouring bytes
	assert.NoError(t, Write(f, 3, []byte{0xa1, 0xa2, 0xa3, 0xa4}))
	assert.Equal(t, f.Bytes()[2:8], []byte{0xff, 0xa1, 0xa2, 0xa3, 0xa4, 0xff})

	// writing right after re-programs the shared word's 0xff half, which
	// is legal: composing with the now-programmed neighbour keeps it
	assert.NoError(t, Write(f, 7, []byte{0xb1}))
	assert.Equal(t, f.Bytes()[2:8], []byte{0xff, 0xa1, 0xa2, 0xa3, 0xa4, 0xb1})
}

func TestWriteSubWord(t *testing.T) {
	f := NewFlash(1, 64, 4)

	// a single byte in the middle of a 4-byte word
	assert.NoError(t, Write(f, 5, []byte{0x42}))
	assert.Equal(t, f.Bytes()[4:8], []byte{0xff, 0x42, 0xff, 0xff})
}

func TestWriteWordSizeOne(t *testing.T) {
	f := NewFlash(1, 64, 1)

	assert.NoError(t, Write(f, 7, []byte{0x10, 0x20, 0x30}))
	assert.Equal(t, f.Bytes()[7:10], []byte{0x10, 0x20, 0x30})
}

func TestWriteZeroLen(t *testing.T) {
	f := NewFlash(1, 64, 2)
	assert.NoError(t, Write(f, 0, nil))
	assert.True(t, mask.Filled(f.Bytes(), Erased))
}

func TestHookCutsPower(t *testing.T) {
	f := NewFlash(1, 64, 2)
	errPower := errors.New("power lost")

	programs := 0
	f.Hook = func(op Op, offset uint32) error {
		if op == OpProgram {
			programs++
			if programs > 1 {
				return errPower
			}
		}
		return nil
	}

	// first word lands, second hits the cut; the plane holds only the
	// bytes programmed before the failure
	err := Write(f, 0, []byte{0x01, 0x02, 0x03, 0x04})
	assert.ErrorIs(t, err, errPower)
	assert.Equal(t, f.Bytes()[:4], []byte{0x01, 0x02, 0xff, 0xff})

	assert.NoError(t, f.Erase(0))
	f.Hook = func(op Op, offset uint32) error { return errPower }
	assert.ErrorIs(t, f.Erase(0), errPower)
}
