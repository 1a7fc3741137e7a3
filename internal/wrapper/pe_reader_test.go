package wrapper

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
)

func wrapBytes(t *testing.T, class Class, entry uint64, size int) (elfData, image []byte) {
	t.Helper()
	elfData = makeELF(t, class, entry, size)
	s, err := Inspect(bytes.NewReader(elfData), int64(len(elfData)))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	var out bytes.Buffer
	if _, err := Wrap(&out, bytes.NewReader(elfData), s); err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	return elfData, out.Bytes()
}

func TestReadImageRoundTrip(t *testing.T) {
	for _, class := range []Class{Class32, Class64} {
		t.Run(class.String(), func(t *testing.T) {
			elfData, image := wrapBytes(t, class, 0x1000, 4096)

			img, err := ReadImage(bytes.NewReader(image))
			if err != nil {
				t.Fatalf("ReadImage failed: %v", err)
			}
			if img.Class != class {
				t.Errorf("Expected class %s, got %s", class, img.Class)
			}
			if err := img.Verify(); err != nil {
				t.Errorf("Verify failed: %v", err)
			}
			if img.OriginalEntry() != 0x1000 {
				t.Errorf("Expected original entry 0x1000, got 0x%x", img.OriginalEntry())
			}
			if img.EntryPoint() != 0x1000+HeaderSize(class) {
				t.Errorf("Expected entry 0x%x, got 0x%x", 0x1000+HeaderSize(class), img.EntryPoint())
			}
			if img.PayloadSize() != 4096 {
				t.Errorf("Expected payload size 4096, got %d", img.PayloadSize())
			}
			if img.COFF.Machine != class.Machine() {
				t.Errorf("Expected machine 0x%x, got 0x%x", class.Machine(), img.COFF.Machine)
			}

			payload, err := io.ReadAll(img.Payload(bytes.NewReader(image)))
			if err != nil {
				t.Fatalf("Failed to read payload: %v", err)
			}
			if !bytes.Equal(payload, elfData) {
				t.Error("Expected embedded payload to equal the input")
			}
		})
	}
}

func TestInspectImage(t *testing.T) {
	_, image := wrapBytes(t, Class64, 0x2345, 2048)
	img, summary, err := InspectImage(bytes.NewReader(image))
	if err != nil {
		t.Fatalf("InspectImage failed: %v", err)
	}
	if summary.Entry != 0x2345 {
		t.Errorf("Expected payload entry 0x2345, got 0x%x", summary.Entry)
	}
	if summary.PayloadSize != 2048 {
		t.Errorf("Expected payload size 2048, got %d", summary.PayloadSize)
	}
	if uint64(img.OriginalEntry()) != summary.Entry {
		t.Errorf("Header entry 0x%x does not match payload entry 0x%x", img.OriginalEntry(), summary.Entry)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	_, image := wrapBytes(t, Class64, 0x1000, 4096)
	image[152] ^= 0xff // CheckSum

	img, err := ReadImage(bytes.NewReader(image))
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	err = img.Verify()
	if err == nil {
		t.Fatal("Expected Verify to fail on a corrupted header")
	}
	if !errors.Is(err, ErrNotWrappedImage) {
		t.Errorf("Expected ErrNotWrappedImage, got %v", err)
	}
}

func TestReadImageRejects(t *testing.T) {
	_, image := wrapBytes(t, Class32, 0x1000, 512)

	corrupt := func(off int, b byte) []byte {
		c := append([]byte(nil), image...)
		c[off] = b
		return c
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"elf object", makeELF(t, Class64, 0x1000, 512)},
		{"truncated", image[:100]},
		{"bad MZ", corrupt(0, 'X')},
		{"bad e_lfanew", corrupt(0x3c, 0x80)},
		{"bad PE signature", corrupt(0x41, 'X')},
		{"three sections", corrupt(70, 3)},
		{"bad magic", corrupt(88, 0x0c)},
		{"bad optional header size", corrupt(84, 0xa0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadImage(bytes.NewReader(tt.data))
			if err == nil {
				t.Fatal("Expected ReadImage to fail")
			}
			if !errors.Is(err, ErrNotWrappedImage) {
				t.Errorf("Expected ErrNotWrappedImage, got %v", err)
			}
		})
	}
}
