package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

const fallbackWidth = 80

// terminalWidth reports the current width of stdout, or a conventional
// default when stdout is not a terminal.
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return width
}

// printParagraph writes one paragraph to stdout followed by a blank line.
// columns == 0 disables wrapping entirely; columns == -1 wraps to the
// terminal width; a positive value wraps to that width and centers the
// block within the terminal.
func printParagraph(paragraph string, columns int) {
	if columns == 0 {
		fmt.Println(paragraph)
		fmt.Println()
		return
	}

	width := columns
	padding := 0
	if columns == -1 {
		width = terminalWidth()
	} else {
		padding = max((terminalWidth()-columns)/2, 0)
	}

	indent := strings.Repeat(" ", padding)
	for _, line := range wrapText(paragraph, width) {
		fmt.Println(indent + line)
	}
	fmt.Println()
}

// wrapText greedily wraps text into lines of at most width columns. Words
// longer than the width occupy a line of their own rather than being split.
func wrapText(text string, width int) []string {
	if width < 1 {
		width = 1
	}

	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		switch {
		case line.Len() == 0:
			line.WriteString(word)
		case line.Len()+1+len(word) <= width:
			line.WriteString(" ")
			line.WriteString(word)
		default:
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(word)
		}
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
