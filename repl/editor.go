package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode"

	"golang.org/x/term"
)

// ErrInterrupt is returned when the user presses Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// Editor is a minimal line editor with history.
// It reads from /dev/tty so it works even when stdout is redirected.
type Editor struct {
	tty      *os.File
	in       *bufio.Reader
	oldState *term.State
	line     lineBuffer
	history  history
}

// NewEditor opens /dev/tty and switches to raw mode.
func NewEditor() (*Editor, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	old, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		tty.Close()
		return nil, fmt.Errorf("raw mode: %w", err)
	}

	return &Editor{tty: tty, in: bufio.NewReader(tty), oldState: old}, nil
}

// Close restores terminal state and closes the tty fd.
func (e *Editor) Close() {
	term.Restore(int(e.tty.Fd()), e.oldState)
	e.tty.Close()
}

// Tty returns the tty file for writing prompts/UI.
func (e *Editor) Tty() *os.File {
	return e.tty
}

// ReadLine displays the prompt and reads one line.
// Returns io.EOF when the user presses Ctrl-D on empty input.
func (e *Editor) ReadLine(prompt string) (string, error) {
	e.line.clear()
	e.history.rewind()
	e.redraw(prompt)

	for {
		r, _, err := e.in.ReadRune()
		if err != nil {
			return "", err
		}

		switch r {
		case 3: // Ctrl-C
			fmt.Fprintf(e.tty, "\r\n")
			return "", ErrInterrupt

		case 4: // Ctrl-D
			if e.line.empty() {
				fmt.Fprintf(e.tty, "\r\n")
				return "", io.EOF
			}
			e.line.delete()

		case 13, 10: // Enter
			fmt.Fprintf(e.tty, "\r\n")
			text := e.line.String()
			e.history.add(text)
			return text, nil

		case 127, 8: // Backspace / Ctrl-H
			e.line.backspace()
		case 1: // Ctrl-A
			e.line.home()
		case 5: // Ctrl-E
			e.line.end()
		case 21: // Ctrl-U
			e.line.clear()
		case 23: // Ctrl-W
			e.line.deleteWord()
		case 16: // Ctrl-P
			e.recall(e.history.prev)
		case 14: // Ctrl-N
			e.recall(e.history.next)

		case 27: // Escape sequence
			e.escape()

		default:
			if unicode.IsPrint(r) {
				e.line.insert(r)
			}
		}

		e.redraw(prompt)
	}
}

// escape handles the CSI sequences of arrow and editing keys.
func (e *Editor) escape() {
	if b, err := e.in.ReadByte(); err != nil || b != '[' {
		return
	}
	b, err := e.in.ReadByte()
	if err != nil {
		return
	}

	switch b {
	case 'A': // Up
		e.recall(e.history.prev)
	case 'B': // Down
		e.recall(e.history.next)
	case 'D':
		e.line.left()
	case 'C':
		e.line.right()
	case 'H':
		e.line.home()
	case 'F':
		e.line.end()
	case '3': // Delete: \x1b[3~
		e.in.ReadByte()
		e.line.delete()
	case '1': // Home: \x1b[1~
		e.in.ReadByte()
		e.line.home()
	case '4': // End: \x1b[4~
		e.in.ReadByte()
		e.line.end()
	}
}

func (e *Editor) recall(step func(current string) (string, bool)) {
	if text, ok := step(e.line.String()); ok {
		e.line.set(text)
	}
}

// redraw clears the current line and redraws prompt + buffer with cursor.
func (e *Editor) redraw(prompt string) {
	// \r = carriage return, \x1b[K = clear to end of line
	fmt.Fprintf(e.tty, "\r\x1b[K%s%s", prompt, e.line.String())

	if tail := e.line.tail(); tail > 0 {
		fmt.Fprintf(e.tty, "\x1b[%dD", tail)
	}
}

// lineBuffer is the text being edited and the cursor within it.
type lineBuffer struct {
	buf []rune
	pos int
}

func (l *lineBuffer) String() string { return string(l.buf) }
func (l *lineBuffer) empty() bool    { return len(l.buf) == 0 }
func (l *lineBuffer) tail() int      { return len(l.buf) - l.pos }
func (l *lineBuffer) home()          { l.pos = 0 }
func (l *lineBuffer) end()           { l.pos = len(l.buf) }

func (l *lineBuffer) clear() {
	l.buf = l.buf[:0]
	l.pos = 0
}

func (l *lineBuffer) set(text string) {
	l.buf = []rune(text)
	l.pos = len(l.buf)
}

func (l *lineBuffer) insert(r rune) {
	l.buf = append(l.buf, 0)
	copy(l.buf[l.pos+1:], l.buf[l.pos:])
	l.buf[l.pos] = r
	l.pos++
}

func (l *lineBuffer) backspace() {
	if l.pos == 0 {
		return
	}
	l.buf = append(l.buf[:l.pos-1], l.buf[l.pos:]...)
	l.pos--
}

func (l *lineBuffer) delete() {
	if l.pos == len(l.buf) {
		return
	}
	l.buf = append(l.buf[:l.pos], l.buf[l.pos+1:]...)
}

func (l *lineBuffer) left() {
	if l.pos > 0 {
		l.pos--
	}
}

func (l *lineBuffer) right() {
	if l.pos < len(l.buf) {
		l.pos++
	}
}

// deleteWord removes the word before the cursor and the spaces after it.
func (l *lineBuffer) deleteWord() {
	start := l.pos
	for start > 0 && unicode.IsSpace(l.buf[start-1]) {
		start--
	}
	for start > 0 && !unicode.IsSpace(l.buf[start-1]) {
		start--
	}
	l.buf = append(l.buf[:start], l.buf[l.pos:]...)
	l.pos = start
}

// history holds submitted lines, oldest first. pos == len(entries) means
// the user is editing a new line, which is kept in draft.
type history struct {
	entries []string
	pos     int
	draft   string
}

func (h *history) add(text string) {
	if text != "" && (len(h.entries) == 0 || h.entries[len(h.entries)-1] != text) {
		h.entries = append(h.entries, text)
	}
	h.rewind()
}

func (h *history) rewind() {
	h.pos = len(h.entries)
	h.draft = ""
}

func (h *history) prev(current string) (string, bool) {
	if h.pos == 0 {
		return "", false
	}
	if h.pos == len(h.entries) {
		h.draft = current
	}
	h.pos--
	return h.entries[h.pos], true
}

func (h *history) next(string) (string, bool) {
	if h.pos >= len(h.entries) {
		return "", false
	}
	h.pos++
	if h.pos == len(h.entries) {
		return h.draft, true
	}
	return h.entries[h.pos], true
}
