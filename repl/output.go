package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	runo "github.com/Paranoid-AF/runo"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

// styles for the tty view.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	verse   lipgloss.Style
	keyword lipgloss.Style
	help    lipgloss.Style
	err     lipgloss.Style
}

func newStyles() styles {
	primary := lipgloss.Color("#7fb3d5")
	dim := lipgloss.Color("#6e7681")
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(primary),
		label:   lipgloss.NewStyle().Bold(true).Foreground(primary),
		verse:   lipgloss.NewStyle().PaddingLeft(2).Italic(true),
		keyword: lipgloss.NewStyle().Bold(true),
		help:    lipgloss.NewStyle().Foreground(dim),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("#e06c75")),
	}
}

// renderVerse styles one verse, emphasising a keyword it starts with.
func (s styles) renderVerse(verse string, keywords []string) string {
	verse = strings.TrimSuffix(verse, "\n")
	for _, kw := range keywords {
		if rest, ok := strings.CutPrefix(verse, kw); ok {
			return s.verse.Render(s.keyword.Render(kw) + rest)
		}
	}
	return s.verse.Render(verse)
}

// settings are the REPL's per-request options.
type settings struct {
	Temperature float64 `toml:"temperature"`
	Prefix      string  `toml:"prefix,omitempty"`
	Lines       int     `toml:"lines"`
}

type entryRequest struct {
	Timestamp   time.Time `toml:"timestamp"`
	KeywordText string    `toml:"keyword_text"`
	Keywords    []string  `toml:"keywords"`
	settings
}

type entryResponse struct {
	Verses   []string `toml:"verses"`
	Runes    int      `toml:"runes"`
	Lines    int      `toml:"lines"`
	Keywords int      `toml:"keywords"`
	Seconds  float64  `toml:"seconds"`
}

type entryError struct {
	Code    string `toml:"code"`
	Message string `toml:"message"`
}

type entry struct {
	Request  entryRequest   `toml:"request"`
	Response *entryResponse `toml:"response,omitempty"`
	Error    *entryError    `toml:"error,omitempty"`
}

// writeEntry writes a single TOML-formatted entry to w.
func writeEntry(w io.Writer, text string, keywords []string, set settings, verses []string, stats *runo.Stats, rerr *runo.Error, elapsed time.Duration) error {
	e := entry{
		Request: entryRequest{
			Timestamp:   time.Now().UTC().Truncate(time.Second),
			KeywordText: text,
			Keywords:    keywords,
			settings:    set,
		},
	}
	if rerr != nil {
		e.Error = &entryError{Code: rerr.Code, Message: rerr.Message}
	} else {
		e.Response = &entryResponse{Verses: verses, Seconds: elapsed.Round(time.Millisecond).Seconds()}
		if stats != nil {
			e.Response.Runes = stats.Runes
			e.Response.Lines = stats.Lines
			e.Response.Keywords = stats.Keywords
		}
	}

	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))
	if err := toml.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
