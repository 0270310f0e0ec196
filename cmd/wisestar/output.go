package main

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// diag receives progress and status lines. Command results go to the
// command's own writer so they can be piped.
var diag io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notice prints a single marked line to diag.
func notice(color, mark, format string, args []any) {
	fmt.Fprintln(diag, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notice(colorGreen, "✓", format, args) }

func printError(format string, args ...any) { notice(colorRed, "✗", format, args) }

func printWarning(format string, args ...any) { notice(colorYellow, "⚠", format, args) }

func printStep(format string, args ...any) { notice(colorCyan, "→", format, args) }

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(diag, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
