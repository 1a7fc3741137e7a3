package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeELF64 writes a minimal x86_64 ELF shared object of the given size
func writeELF64(t *testing.T, dir string, entry uint64, size int) string {
	t.Helper()

	hdr := elf.Header64{
		Type:    uint16(elf.ET_DYN),
		Machine: uint16(elf.EM_X86_64),
		Version: uint32(elf.EV_CURRENT),
		Entry:   entry,
		Ehsize:  64,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		t.Fatalf("Failed to encode ELF header: %v", err)
	}
	for buf.Len() < size {
		buf.WriteByte(0x90)
	}

	path := filepath.Join(dir, "payload.so")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--no-color"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"one argument", []string{"input.so"}},
		{"three arguments", []string{"a", "b", "c"}},
		{"unknown flag", []string{"--bogus", "a", "b"}},
		{"inspect without file", []string{"inspect"}},
		{"watch without output", []string{"watch", "input.so"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != 2 {
				t.Errorf("Expected exit code 2, got %d", code)
			}
			if !strings.Contains(stderr, "error:") {
				t.Errorf("Expected an error message, got %q", stderr)
			}
		})
	}
}

func TestRunUsageMessage(t *testing.T) {
	_, _, stderr := runCLI(t)
	if !strings.Contains(stderr, "usage: elf2efi [flags] <ELF shared object> <output file>") {
		t.Errorf("Expected usage line, got %q", stderr)
	}
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "-V")
	if code != 0 {
		t.Errorf("Expected exit code 0, got %d", code)
	}
	if strings.TrimSpace(stdout) != versionString {
		t.Errorf("Expected %q, got %q", versionString, stdout)
	}
}

func TestRunConvert(t *testing.T) {
	dir := t.TempDir()
	in := writeELF64(t, dir, 0x1000, 4096)
	out := filepath.Join(dir, "BOOTX64.EFI")

	code, _, stderr := runCLI(t, in, out)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stderr, "entry point 0x1156") {
		t.Errorf("Expected the new entry point to be reported, got %q", stderr)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("Failed to stat output: %v", err)
	}
	if info.Size() != 4438 {
		t.Errorf("Expected 4438 byte image, got %d", info.Size())
	}
}

func TestRunConvertQuiet(t *testing.T) {
	dir := t.TempDir()
	in := writeELF64(t, dir, 0x1000, 1024)

	code, stdout, stderr := runCLI(t, "-q", in, filepath.Join(dir, "out.efi"))
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr)
	}
	if stdout != "" || stderr != "" {
		t.Errorf("Expected no output in quiet mode, got %q and %q", stdout, stderr)
	}
}

func TestRunConvertDirect(t *testing.T) {
	dir := t.TempDir()
	in := writeELF64(t, dir, 0x1000, 2048)
	atomicOut := filepath.Join(dir, "atomic.efi")
	directOut := filepath.Join(dir, "direct.efi")

	if code, _, stderr := runCLI(t, in, atomicOut); code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr)
	}
	if code, _, stderr := runCLI(t, "--direct", in, directOut); code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr)
	}

	a, _ := os.ReadFile(atomicOut)
	d, _ := os.ReadFile(directOut)
	if len(a) == 0 || !bytes.Equal(a, d) {
		t.Error("Expected --direct to produce the same image")
	}
}

func TestRunConvertErrors(t *testing.T) {
	dir := t.TempDir()
	notELF := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notELF, []byte("just some text, not an ELF file"), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", notELF, err)
	}
	elf64 := writeELF64(t, dir, 0x1000, 512)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantMsg  string
	}{
		{"not ELF", []string{notELF}, 1, "input file not ELF shared object"},
		{"missing input", []string{filepath.Join(dir, "missing.so")}, 1, "open input"},
		{"class mismatch", []string{"--class", "32", elf64}, 1, "does not match"},
		{"bad class flag", []string{"--class", "arm", elf64}, 2, "unsupported class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.efi")
			code, _, stderr := runCLI(t, append(tt.args, out)...)
			if code != tt.wantCode {
				t.Errorf("Expected exit code %d, got %d", tt.wantCode, code)
			}
			if !strings.Contains(stderr, tt.wantMsg) {
				t.Errorf("Expected %q in %q", tt.wantMsg, stderr)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("Expected no output file, stat returned %v", err)
			}
		})
	}
}

func TestRunConvertMatchingClass(t *testing.T) {
	dir := t.TempDir()
	in := writeELF64(t, dir, 0x1000, 512)
	if code, _, stderr := runCLI(t, "--class", "x86_64", in, filepath.Join(dir, "out.efi")); code != 0 {
		t.Errorf("Expected exit code 0, got %d: %s", code, stderr)
	}
}

func TestRunInspectImage(t *testing.T) {
	dir := t.TempDir()
	in := writeELF64(t, dir, 0x1000, 4096)
	out := filepath.Join(dir, "BOOTX64.EFI")
	if code, _, stderr := runCLI(t, in, out); code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr)
	}

	code, stdout, stderr := runCLI(t, "inspect", out)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr)
	}
	for _, want := range []string{"PE32+", "0x1156", "0x1000", "4438", ".text, .reloc", "ok"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected %q in inspect output:\n%s", want, stdout)
		}
	}
}

func TestRunInspectELF(t *testing.T) {
	in := writeELF64(t, t.TempDir(), 0x1000, 4096)

	code, stdout, stderr := runCLI(t, "inspect", in)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr)
	}
	for _, want := range []string{"not wrapped yet", "0x1156", "4438", "BOOTX64.EFI"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected %q in inspect output:\n%s", want, stdout)
		}
	}
}

func TestRunInspectFailures(t *testing.T) {
	dir := t.TempDir()
	in := writeELF64(t, dir, 0x1000, 4096)
	out := filepath.Join(dir, "image.efi")
	if code, _, stderr := runCLI(t, in, out); code != 0 {
		t.Fatalf("Expected exit code 0, got %d: %s", code, stderr)
	}
	image, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Failed to read image: %v", err)
	}

	corrupted := append([]byte(nil), image...)
	corrupted[152] ^= 0xff // CheckSum
	corruptedPath := filepath.Join(dir, "corrupted.efi")
	truncatedPath := filepath.Join(dir, "truncated.efi")
	textPath := filepath.Join(dir, "text.efi")
	for path, data := range map[string][]byte{
		corruptedPath: corrupted,
		truncatedPath: image[:1000],
		textPath:      []byte("not an image"),
	} {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	for _, path := range []string{corruptedPath, truncatedPath} {
		code, stdout, _ := runCLI(t, "inspect", path)
		if code != 1 {
			t.Errorf("%s: expected exit code 1, got %d", filepath.Base(path), code)
		}
		if !strings.Contains(stdout, "FAILED") {
			t.Errorf("%s: expected failed verification in output:\n%s", filepath.Base(path), stdout)
		}
	}

	if code, _, stderr := runCLI(t, "inspect", textPath); code != 1 || !strings.Contains(stderr, "error:") {
		t.Errorf("Expected exit code 1 and an error for a text file, got %d: %q", code, stderr)
	}
}
