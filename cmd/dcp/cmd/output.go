package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// outputWriter and inputReader back the commands' stdout and stdin, and can
// be overridden in tests
var (
	outputWriter io.Writer = os.Stdout
	inputReader  io.Reader = os.Stdin
)

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := visualWidth(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", color.Bold.Sprint(title))
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", color.Cyan.Sprint(title))
	fmt.Fprintln(outputWriter, strings.Repeat("-", visualWidth(title)+2))
}

// printSideBySide prints two blocks of text side by side
// padding is the minimum spaces between the two columns
func printSideBySide(leftContent string, rightLines []string, padding int) {
	leftLines := strings.Split(strings.TrimRight(leftContent, "\n"), "\n")

	leftWidth := 0
	for _, line := range leftLines {
		if w := visualWidth(line); w > leftWidth {
			leftWidth = w
		}
	}

	maxHeight := max(len(leftLines), len(rightLines))
	for i := 0; i < maxHeight; i++ {
		leftPart, rightPart := "", ""
		if i < len(leftLines) {
			leftPart = leftLines[i]
		}
		if i < len(rightLines) {
			rightPart = rightLines[i]
		}

		fmt.Fprint(outputWriter, leftPart)
		if rightPart == "" {
			fmt.Fprintln(outputWriter)
			continue
		}
		if spaces := leftWidth - visualWidth(leftPart) + padding; spaces > 0 {
			fmt.Fprint(outputWriter, strings.Repeat(" ", spaces))
		}
		fmt.Fprintln(outputWriter, rightPart)
	}
}

// visualWidth returns the terminal width of s, ignoring color codes and
// counting wide characters twice.
func visualWidth(s string) int {
	return runewidth.StringWidth(color.ClearCode(s))
}
