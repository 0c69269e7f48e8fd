package fluffer

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"fluffer/mask"
)

// The inspector is the debug channel: it renders the raw medium next to the
// reconstructed context, and single-key operations drive the live instance
// so a rotation can be watched happening on the bytes themselves.

type model struct {
	f      *Fluffer
	reader Reader

	next byte   // payload byte for the next interactive write
	last string // outcome of the previous keypress
	err  error
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	var err error
	switch key.String() {
	case "q":
		return m, tea.Quit

	case "w":
		payload := make([]byte, m.f.Cfg.ElementSize)
		mask.Fill(payload, m.next)
		err = m.f.WriteEntry(payload)
		m.last = fmt.Sprintf("write %02x: %v", m.next, err)
		if err == nil {
			m.next++
		}

	case "m":
		err = m.f.MarkEntry()
		m.last = fmt.Sprintf("mark: %v", err)

	case "r":
		buf := make([]byte, m.f.Cfg.ElementSize)
		err = m.f.ReadEntry(&m.reader, buf)
		if err == nil {
			m.last = fmt.Sprintf("read #%d: %02x..", m.reader.ID-1, buf[0])
		} else {
			m.last = fmt.Sprintf("read: %v", err)
		}

	case "i":
		err = m.f.InitReader(&m.reader)
		m.last = fmt.Sprintf("reader reset to %d: %v", m.reader.ID, err)
	}

	// empty-queue results are part of normal stepping; anything else is a
	// real memory failure and worth stopping on
	if err != nil && !errors.Is(err, ErrEmpty) {
		m.err = err
		return m, tea.Quit
	}
	return m, nil
}

// highlight marks the two addresses the context points at: the head slot's
// mark word and the tail slot's first payload byte.
func (m model) highlight(addr uint32) bool {
	if m.f.head < m.f.size && addr == m.f.Cfg.markAddress(m.f.main, m.f.head) {
		return true
	}
	return m.f.tail < m.f.size && addr == m.f.Cfg.entryAddress(m.f.main, m.f.tail)
}

// renderRow renders n medium bytes at addr as one hex line.
func (m model) renderRow(addr uint32, n int) string {
	row := make([]byte, n)
	if err := m.f.Mem.Read(addr, row); err != nil {
		return fmt.Sprintf("%05x | read error: %v", addr, err)
	}
	s := fmt.Sprintf("%05x | ", addr)
	for i, b := range row {
		if m.highlight(addr + uint32(i)) {
			s += fmt.Sprintf("[%02x] ", b)
		} else {
			s += fmt.Sprintf(" %02x  ", b)
		}
	}
	return s
}

func (m model) medium() string {
	const rowLen = 16

	var lines []string
	for b := uint8(0); b < m.f.Cfg.Blocks; b++ {
		tag := ""
		if b == m.f.main {
			tag = " (main)"
		}
		lines = append(lines, fmt.Sprintf("block %d%s", b, tag))

		base := m.f.Cfg.blockAddress(b)
		size := m.f.Cfg.blockSize()
		for off := uint32(0); off < size; off += rowLen {
			n := size - off
			if n > rowLen {
				n = rowLen
			}
			lines = append(lines, m.renderRow(base+off, int(n)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m model) status() string {
	return fmt.Sprintf(`
main:  %d
head:  %d
tail:  %d
size:  %d
empty: %v
full:  %v

reader: %d
next:   %02x

w write  m mark
r read   i reset reader
q quit

%s`,
		m.f.main,
		m.f.head,
		m.f.tail,
		m.f.size,
		m.f.IsEmpty(),
		m.f.IsFull(),
		m.reader.ID,
		m.next,
		m.last,
	)
}

// View renders the raw medium beside the context. The view is rendered
// after every Update.
func (m model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.JoinHorizontal(
			lipgloss.Top,
			m.medium(),
			"   ",
			m.status(),
		),
		"",
		spew.Sdump(m.f.Cfg),
	)
}

// Debug starts an interactive TUI over the instance's medium. The instance
// must already be initialized.
func (f *Fluffer) Debug() {
	res, err := tea.NewProgram(model{f: f, next: 0x01}).Run()
	if err != nil {
		panic(err)
	}
	x := res.(model)
	if x.err != nil {
		fmt.Println("Error:", x.err)
	}
}
