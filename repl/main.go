// Command runo-repl is an interactive REPL for verse generation.
// Each input line is a set of keywords; the verses are shown on the
// terminal as they are produced and a TOML record of every round is
// written to stdout.
//
// Usage:
//
//	./runo-repl             # interactive, TOML on screen
//	./runo-repl > log.toml  # verses on screen, TOML to file
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	runo "github.com/Paranoid-AF/runo"
	"github.com/Paranoid-AF/runo/generate"
)

const prompt = "> "

func main() {
	editor, err := NewEditor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer editor.Close()

	tty := editor.Tty()
	st := newStyles()

	engine := generate.NewEngine()
	defer engine.Close()

	cfg := engine.Config()
	set := settings{Temperature: cfg.Sampling.Temperature, Lines: cfg.Sampling.Lines}

	fmt.Fprintf(tty, "\033[2J\033[H") // clear screen
	fmt.Fprintf(tty, "%s\r\n", st.title.Render("runo repl"))
	fmt.Fprintf(tty, "model: %s\r\n", runo.ResolveModelDir(cfg))
	fmt.Fprintf(tty, "\r\n%s\r\n", st.label.Render("commands:"))
	for _, line := range []string{
		"  <keywords>       generate verses around the keywords",
		"  :temp <t>        set temperature",
		"  :prefix <text>   set the opening text (empty for random)",
		"  :lines <n>       set number of verses",
		"  :quit            exit",
	} {
		fmt.Fprintf(tty, "%s\r\n", st.help.Render(line))
	}
	fmt.Fprintf(tty, "\r\n")

	// stdout writer: converts \n → \r\n when stdout is a terminal (raw mode),
	// passes \n through unchanged when redirected to a file.
	out := termWriter(os.Stdout)

	reqID := 0

	for {
		text, err := editor.ReadLine(prompt)
		if err == io.EOF || err == ErrInterrupt {
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\r\n", err)
			break
		}

		if strings.HasPrefix(text, ":") {
			msg, quit := applyCommand(&set, text)
			if quit {
				break
			}
			fmt.Fprintf(tty, "%s\r\n\r\n", st.help.Render(msg))
			continue
		}

		reqID++
		keywords := generate.ParseKeywords(text)
		req := &runo.Request{
			RequestID:   reqID,
			SessionID:   "repl",
			Keywords:    keywords,
			Prefix:      set.Prefix,
			Temperature: set.Temperature,
			Lines:       set.Lines,
		}

		start := time.Now()
		var verses []string
		stats, err := engine.Stream(context.Background(), req, func(v string) error {
			verses = append(verses, v)
			fmt.Fprintf(tty, "%s\r\n", st.renderVerse(v, keywords))
			return nil
		})

		var rerr *runo.Error
		if errors.As(err, &rerr) {
			fmt.Fprintf(tty, "%s\r\n", st.err.Render(fmt.Sprintf("error [%s]: %s", rerr.Code, rerr.Message)))
		}
		fmt.Fprintf(tty, "\r\n")

		// TOML output to stdout (crlfWriter handles raw mode).
		writeEntry(out, text, keywords, set, verses, stats, rerr, time.Since(start))
	}
}

// applyCommand changes set according to a ":" command and returns a
// message for the user.
func applyCommand(set *settings, text string) (msg string, quit bool) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(text, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "q":
		return "", true

	case "temp", "t":
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil || !(t > 0) {
			return fmt.Sprintf("invalid temperature %q", arg), false
		}
		set.Temperature = t
		return fmt.Sprintf("temperature: %g", t), false

	case "prefix", "p":
		set.Prefix = arg
		if arg == "" {
			return "prefix: random capital", false
		}
		return fmt.Sprintf("prefix: %q", arg), false

	case "lines", "l":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return fmt.Sprintf("invalid line count %q", arg), false
		}
		set.Lines = n
		return fmt.Sprintf("lines: %d", n), false
	}
	return fmt.Sprintf("unknown command :%s", name), false
}
