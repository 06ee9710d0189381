package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"speed-service/internal/speed"
)

const (
	modePrompt  = "Enter mode(NORMAL, SPORT or SAFE): "
	eventPrompt = "Enter Event: "
)

// isTerminal reports whether f is attached to a terminal; prompts are only
// printed when it is.
func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

type harness struct {
	in          *bufio.Scanner
	out         io.Writer
	interactive bool
}

func newHarness(in io.Reader, out io.Writer, interactive bool) *harness {
	return &harness{
		in:          bufio.NewScanner(in),
		out:         out,
		interactive: interactive,
	}
}

func (h *harness) prompt(s string) {
	if h.interactive {
		fmt.Fprint(h.out, s)
	}
}

// readMode reads one line and parses it as a drive mode.
func (h *harness) readMode() (speed.DriveMode, error) {
	h.prompt(modePrompt)
	if !h.in.Scan() {
		if err := h.in.Err(); err != nil {
			return speed.ModeNormal, fmt.Errorf("failed to read mode: %w", err)
		}
		return speed.ModeNormal, fmt.Errorf("failed to read mode: %w", io.EOF)
	}
	return speed.ParseMode(h.in.Text())
}

// run forwards one integer event per line until ctx ends or input runs out.
// Lines that are not integers are reported and skipped.
func (h *harness) run(ctx context.Context, handle func(int) error) error {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		for h.in.Scan() {
			select {
			case lines <- h.in.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- h.in.Err()
	}()

	for {
		h.prompt(eventPrompt)
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errs
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			code, err := strconv.Atoi(line)
			if err != nil {
				fmt.Fprintf(h.out, "Invalid event %q: expected an integer event code\n", line)
				continue
			}
			if err := handle(code); err != nil {
				fmt.Fprintf(h.out, "Event %d not handled: %v\n", code, err)
			}
		}
	}
}
