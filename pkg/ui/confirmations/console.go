// Package confirmations asks the user yes/no questions on a console
package confirmations

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

// ConsoleDialog prompts on out and reads answers from in
type ConsoleDialog struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsoleDialog creates a dialog on the given streams
func NewConsoleDialog(in io.Reader, out io.Writer) *ConsoleDialog {
	return &ConsoleDialog{in: bufio.NewReader(in), out: out}
}

// Confirm shows question with a [y/N] suffix. Only y, Y and yes accept;
// an empty line, any other answer or end of input declines.
func (d *ConsoleDialog) Confirm(question string) (bool, error) {
	if _, err := fmt.Fprintf(d.out, "%s [y/N]: ", question); err != nil {
		return false, err
	}

	line, err := d.in.ReadString('\n')
	if err != nil && !stderrors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	if stderrors.Is(err, io.EOF) && line == "" {
		_, _ = fmt.Fprintln(d.out)
		return false, nil
	}

	return Accepts(line), nil
}

// Accepts reports whether answer is a yes
func Accepts(answer string) bool {
	switch strings.TrimSpace(answer) {
	case "y", "Y", "yes":
		return true
	}
	return false
}
