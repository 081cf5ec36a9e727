//go:build !rp2040 && !rp2350

package fmtx

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultOutput is used by Print/Printf. Platform bootstrap or tests may
// redirect it.
var DefaultOutput io.Writer = os.Stdout

func Sprintf(format string, a ...any) string { return fmt.Sprintf(format, a...) }

func Printf(format string, a ...any) (int, error) {
	return fmt.Fprintf(DefaultOutput, format, a...)
}

func Fprintf(w io.Writer, format string, a ...any) (int, error) { return fmt.Fprintf(w, format, a...) }

func Errorf(format string, a ...any) error { return fmt.Errorf(format, a...) }

// Sprint joins every operand with a single space, matching the MCU build
// rather than fmt.Sprint's string-adjacency rule.
func Sprint(a ...any) string { return strings.TrimSuffix(fmt.Sprintln(a...), "\n") }

func Fprint(w io.Writer, a ...any) (int, error) { return io.WriteString(w, Sprint(a...)) }

func Print(a ...any) (int, error) { return Fprint(DefaultOutput, a...) }
