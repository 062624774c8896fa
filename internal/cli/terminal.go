// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// OUTPUT DETECTION
// =============================================================================

const (
	// fallbackWidth is used when the output is not a terminal.
	fallbackWidth = 80

	// minWidth keeps tables readable in very narrow terminals.
	minWidth = 40
)

// fdWriter is satisfied by *os.File.
type fdWriter interface {
	Fd() uintptr
}

func isTerminal(v any) bool {
	f, ok := v.(fdWriter)
	return ok && term.IsTerminal(int(f.Fd()))
}

// outputWidth returns the column count of w, or fallbackWidth when w is a
// pipe, file or buffer.
func outputWidth(w io.Writer) int {
	if !isTerminal(w) {
		return fallbackWidth
	}
	cols, _, err := term.GetSize(int(w.(fdWriter).Fd()))
	if err != nil || cols <= 0 {
		return fallbackWidth
	}
	return max(cols, minWidth)
}

// colorProfile picks the color depth for w. NO_COLOR disables color even
// when FORCE_COLOR is set (https://no-color.org/).
func colorProfile(w io.Writer) termenv.Profile {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return termenv.Ascii
	case os.Getenv("FORCE_COLOR") != "":
		return termenv.ANSI256
	case !isTerminal(w):
		return termenv.Ascii
	}
	return termenv.NewOutput(w).ColorProfile()
}

// =============================================================================
// PASSWORD PROMPT
// =============================================================================

// ErrNoTTY is returned when a prompt needs a terminal and stdin is not one.
var ErrNoTTY = errors.New("stdin is not a terminal")

// PromptPassword reads a secret from in without echo. in must be a terminal.
func PromptPassword(in io.Reader, out io.Writer, prompt string) (string, error) {
	if !isTerminal(in) {
		return "", fmt.Errorf("cannot prompt for password: %w", ErrNoTTY)
	}
	fmt.Fprint(out, prompt)
	secret, err := term.ReadPassword(int(in.(fdWriter).Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
