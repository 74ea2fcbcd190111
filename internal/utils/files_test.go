package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWrapLineShortLineGetsEnd(t *testing.T) {
	lines := WrapLine("define fixed1 sele segid PROA end")
	if len(lines) != 1 {
		t.Fatalf("len = %d, want 1", len(lines))
	}
	if !strings.HasSuffix(lines[0], "end") {
		t.Fatalf("line %q missing end keyword", lines[0])
	}
	if strings.HasSuffix(lines[0], "end end") {
		t.Fatalf("line %q doubled the end keyword", lines[0])
	}
}

func TestWrapLineLongLine(t *testing.T) {
	long := "define fixed1 sele " + strings.Repeat("resid 123 .or. ", 20) + "segid PROA end"
	lines := WrapLine(long)
	if len(lines) < 2 {
		t.Fatalf("expected continuation lines, got %d", len(lines))
	}
	for i, line := range lines[:len(lines)-1] {
		if !strings.HasSuffix(line, " -") {
			t.Fatalf("continuation line %d = %q missing marker", i, line)
		}
	}
	if !strings.HasSuffix(lines[len(lines)-1], "end") {
		t.Fatalf("final line %q missing end keyword", lines[len(lines)-1])
	}
}

func TestSanitizeConstInpFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "const.inp")
	long := "define fixed1 sele " + strings.Repeat("resid 123 .or. ", 20) + "segid PROA end"
	contents := "define fixed0 sele segid PROB end\n" + long + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SanitizeConstInpFile(path); err != nil {
		t.Fatalf("SanitizeConstInpFile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if len(line) > 80 {
			t.Fatalf("line still too long after sanitize: %q", line)
		}
	}
	if !strings.Contains(string(raw), "define fixed0 sele segid PROB end") {
		t.Fatal("short line was modified")
	}
}
