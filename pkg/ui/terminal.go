package ui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Banner is printed when an interactive run starts
const Banner = `
  ╔═══════════════════════════════════════════╗
  ║   igengage · post engagement retrieval    ║
  ╚═══════════════════════════════════════════╝
`

// ANSI wrappers
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

func plain(text string) string { return text }

// Printer writes user-facing messages. Colors are used only on a terminal.
type Printer struct {
	out   io.Writer
	quiet bool
	color bool
}

// NewPrinter prints to out. A quiet printer drops everything but errors.
func NewPrinter(out io.Writer, quiet bool) *Printer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: out, quiet: quiet, color: color}
}

// Stdout is the default printer
func Stdout(quiet bool) *Printer {
	return NewPrinter(os.Stdout, quiet)
}

func (p *Printer) paint(c func(string) string) func(string) string {
	if p.color {
		return c
	}
	return plain
}

// Banner prints the banner
func (p *Printer) Banner() {
	if p.quiet {
		return
	}
	fmt.Fprint(p.out, p.paint(Cyan)(Banner))
}

// Error prints an error message in red, never suppressed
func (p *Printer) Error(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	fmt.Fprintln(p.out, p.paint(Red)(msg))
}

// Success prints a success message in green
func (p *Printer) Success(msg string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.paint(Green)(msg))
}

// Info prints a label and value
func (p *Printer) Info(label string, value string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s: %s\n", p.paint(Cyan)(label), p.paint(Yellow)(value))
}

// Warning prints a warning in yellow
func (p *Printer) Warning(msg string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.paint(Yellow)(msg))
}

// Highlight prints a message in magenta
func (p *Printer) Highlight(msg string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.paint(Magenta)(msg))
}

// Printf writes formatted text without color
func (p *Printer) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, format, args...)
}
