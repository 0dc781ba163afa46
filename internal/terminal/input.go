// Package terminal reads user input lines and parses slash commands.
package terminal

import (
	"bufio"
	"io"
	"strings"
)

// Input reads lines of user input.
type Input struct {
	scanner *bufio.Scanner
}

// NewInput creates an Input reading from r.
func NewInput(r io.Reader) *Input {
	return &Input{scanner: bufio.NewScanner(r)}
}

// ReadLine reads a line of input from the user, trimmed of surrounding
// whitespace. It returns io.EOF when the input is exhausted.
func (in *Input) ReadLine() (string, error) {
	if !in.scanner.Scan() {
		if err := in.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(in.scanner.Text()), nil
}
