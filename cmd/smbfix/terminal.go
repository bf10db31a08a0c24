package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Keav/smbfix/smbfix/ports"
)

// terminal implements ports.Interactor on plain streams. Writes are
// serialised because event callbacks arrive from concurrent passes.
type terminal struct {
	mu     sync.Mutex
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func newTerminal(in io.Reader, out, errOut io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out, errOut: errOut}
}

func (t *terminal) Output(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, message)
}

func (t *terminal) Outputf(format string, args ...interface{}) {
	t.Output(fmt.Sprintf(format, args...))
}

func (t *terminal) Warning(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.errOut, "warning: "+message)
}

func (t *terminal) Error(message string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		fmt.Fprintln(t.errOut, "error: "+message)
		return
	}
	fmt.Fprintf(t.errOut, "error: %s: %v\n", message, err)
}

// Confirm asks a yes/no question on the error stream, keeping stdout free for
// reports. An empty answer or end of input picks defaultValue.
func (t *terminal) Confirm(message string, defaultValue bool) (bool, error) {
	hint := "[y/N]"
	if defaultValue {
		hint = "[Y/n]"
	}

	t.mu.Lock()
	fmt.Fprintf(t.errOut, "%s %s: ", message, hint)
	t.mu.Unlock()

	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return defaultValue, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

var _ ports.Interactor = (*terminal)(nil)
