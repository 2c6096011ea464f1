package core

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/josephlewis42/rush/core/config"
	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/term"
)

// SimpleCommand parses flags for a builtin and handles --help.
type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a sone line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool
	// NeverBail skips interacting with stdout/stderr on failure and
	// always runs the callback.
	NeverBail bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (c *SimpleCommand) Flags() *getopt.Set {
	if c.flags == nil {
		c.flags = getopt.New()
	}

	return c.flags
}

// PrintHelp writes help for the command to the given writer.
func (c *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, c.Use)
	fmt.Fprintln(w, c.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	c.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was succcessful call the callback.
func (c *SimpleCommand) Run(s *Shell, args []string, callback func() int) int {
	opts := c.Flags()

	// Add help flag if not overridden.
	if c.ShowHelp == nil {
		c.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	err := opts.Getopt(args, nil)
	if err != nil {
		s.Logger.Printf("%s: invalid invocation: %v", args[0], err)
	}

	if err != nil && !c.NeverBail {
		fmt.Fprintf(s.Err, "%s: %s\n\n", args[0], err)

		c.PrintHelp(s.Err)
		return StatusUsage
	}

	if *c.ShowHelp {
		c.PrintHelp(s.Out)
		return 0
	}

	return callback()
}

// Colors are always enabled; ColorPrinter decides whether to use them.
var (
	ColorBoldGreen  = enabledColor(color.FgGreen, color.Bold)
	ColorBoldYellow = enabledColor(color.FgYellow, color.Bold)
	ColorBoldRed    = enabledColor(color.FgRed, color.Bold)
)

func enabledColor(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// ColorPrinter colors output according to the configured color mode.
type ColorPrinter struct {
	mode string
	out  *os.File
}

// NewColorPrinter creates a printer for output written to out.
func NewColorPrinter(mode string, out *os.File) *ColorPrinter {
	return &ColorPrinter{mode: mode, out: out}
}

func (c *ColorPrinter) ShouldColor() bool {
	switch {
	case c == nil || c.mode == config.ColorNever:
		return false
	case c.mode == config.ColorAlways:
		return true
	default:
		return c.out != nil && term.IsTerminal(int(c.out.Fd()))
	}
}

func (c *ColorPrinter) Sprintf(clr *color.Color, format string, a ...interface{}) string {
	if c.ShouldColor() {
		return clr.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}
