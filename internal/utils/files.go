package utils

import (
	"fmt"
	"os"
	"strings"
)

// constInpMaxLine is the longest line CHARMM accepts in a const.inp file.
const constInpMaxLine = 78

// WrapLine splits an over-long constraint line into continuation lines.
// Intermediate lines get a trailing " -" continuation marker; the final
// line gets the "end" keyword unless it already carries one.
func WrapLine(line string) []string {
	words := strings.Fields(line)
	var wrapped []string
	current := ""

	for _, word := range words {
		if len(current+word) > constInpMaxLine {
			wrapped = append(wrapped, strings.TrimSpace(current)+" -")
			current = word + " "
		} else {
			current += word + " "
		}
	}

	if trimmed := strings.TrimSpace(current); trimmed != "" {
		if strings.HasSuffix(trimmed, "end") {
			wrapped = append(wrapped, trimmed)
		} else {
			wrapped = append(wrapped, trimmed+" end")
		}
	}
	return wrapped
}

// SanitizeConstInpFile rewrites a const.inp in place, wrapping any line
// longer than CHARMM's limit.
func SanitizeConstInpFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read const file: %w", err)
	}

	var sanitized []string
	for _, line := range strings.Split(string(raw), "\n") {
		if len(line) > constInpMaxLine {
			sanitized = append(sanitized, WrapLine(line)...)
		} else {
			sanitized = append(sanitized, line)
		}
	}

	if err := os.WriteFile(path, []byte(strings.Join(sanitized, "\n")), 0o644); err != nil {
		return fmt.Errorf("write const file: %w", err)
	}
	return nil
}
