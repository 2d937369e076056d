package console

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Console writes user-facing status lines
type Console interface {
	Printf(format string, a ...any)
	Successf(format string, a ...any)
	Warnf(format string, a ...any)
}

type writerConsole struct {
	out     io.Writer
	success *color.Color
	warn    *color.Color
}

// New returns a Console writing to out. Colour is dropped automatically when
// stdout is not a terminal or NO_COLOR is set.
func New(out io.Writer) Console {
	return &writerConsole{
		out:     out,
		success: color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
	}
}

func (c *writerConsole) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(c.out, format+"\n", a...)
}

func (c *writerConsole) Successf(format string, a ...any) {
	_, _ = c.success.Fprintf(c.out, format+"\n", a...)
}

func (c *writerConsole) Warnf(format string, a ...any) {
	_, _ = c.warn.Fprintf(c.out, format+"\n", a...)
}
