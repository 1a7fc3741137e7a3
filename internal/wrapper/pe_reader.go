// Completion: 100% - Reader for wrapped EFI images complete
package wrapper

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/xyproto/elf2efi/internal/logging"
)

var ErrNotWrappedImage = errors.New("not an EFI image produced by elf2efi")

// Image is a parsed header block of a wrapped image
type Image struct {
	HeaderBlock
	Class Class
	raw   []byte
}

// ReadImage parses the header block at the start of r.
// It uses the same record types as PEWriter.
func ReadImage(r io.ReaderAt) (*Image, error) {
	raw := make([]byte, HeaderSize64)
	n, err := r.ReadAt(raw, 0)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "read image header")
	}
	raw = raw[:n]

	img := &Image{}
	br := bytes.NewReader(raw)
	read := func(name string, v interface{}) error {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return errors.Wrapf(ErrNotWrappedImage, "read %s: %v", name, err)
		}
		return nil
	}

	if err := read("MS-DOS stub", &img.DOS); err != nil {
		return nil, err
	}
	if img.DOS.Signature != msdosSignature {
		return nil, errors.Wrap(ErrNotWrappedImage, "missing MZ signature")
	}
	if img.DOS.PEOffset != peHeaderOffset {
		return nil, errors.Wrapf(ErrNotWrappedImage, "PE header at 0x%x, expected 0x%x", img.DOS.PEOffset, peHeaderOffset)
	}
	if img.DOS.PESignature != peSignature {
		return nil, errors.Wrap(ErrNotWrappedImage, "missing PE signature")
	}

	if err := read("COFF header", &img.COFF); err != nil {
		return nil, err
	}
	if img.COFF.NumberOfSections != numSections {
		return nil, errors.Wrapf(ErrNotWrappedImage, "%d sections, expected %d", img.COFF.NumberOfSections, numSections)
	}

	// The optional header magic tells PE32 from PE32+
	var magic uint16
	if len(raw) >= dosStubSize+coffHeaderSize+2 {
		magic = binary.LittleEndian.Uint16(raw[dosStubSize+coffHeaderSize:])
	}
	switch magic {
	case pe32Magic:
		img.Class = Class32
		img.Headers = &PE32Headers{}
	case pe32PlusMagic:
		img.Class = Class64
		img.Headers = &PE32PlusHeaders{}
	default:
		return nil, errors.Wrapf(ErrNotWrappedImage, "optional header magic 0x%x", magic)
	}
	if got, want := img.COFF.SizeOfOptionalHeader, optionalHeaderSize(img.Class); got != want {
		return nil, errors.Wrapf(ErrNotWrappedImage, "optional header is %d bytes, expected %d", got, want)
	}

	for _, rec := range img.Headers.records() {
		if err := read("optional header", rec); err != nil {
			return nil, err
		}
	}
	if err := read(".text section", &img.Text); err != nil {
		return nil, err
	}
	if err := read(".reloc section", &img.Reloc); err != nil {
		return nil, err
	}
	if err := read("base relocation", &img.Fixup); err != nil {
		return nil, err
	}
	if err := read("relocation filler", &img.Filler); err != nil {
		return nil, err
	}

	img.raw = raw[:HeaderSize(img.Class)]
	logging.Debugf("read %s image header: entry=0x%x size=%d", img.Class, img.EntryPoint(), img.ImageSize())
	return img, nil
}

func (img *Image) HeaderSize() uint32 {
	return HeaderSize(img.Class)
}

func (img *Image) EntryPoint() uint32 {
	return img.Headers.EntryPoint()
}

func (img *Image) ImageSize() uint32 {
	return img.Headers.ImageSize()
}

// OriginalEntry is the ELF entry point before it was shifted past the headers
func (img *Image) OriginalEntry() uint32 {
	return img.EntryPoint() - img.HeaderSize()
}

// PayloadSize is the size of the embedded ELF object, or 0 for a malformed size
func (img *Image) PayloadSize() uint64 {
	if img.ImageSize() < img.HeaderSize() {
		return 0
	}
	return uint64(img.ImageSize() - img.HeaderSize())
}

// Plan returns the header plan this image claims to be built from
func (img *Image) Plan() HeaderPlan {
	return HeaderPlan{
		Class:       img.Class,
		HeaderSize:  img.HeaderSize(),
		EntryPoint:  img.EntryPoint(),
		ImageSize:   img.ImageSize(),
		PayloadSize: img.PayloadSize(),
	}
}

// Payload returns a reader over the embedded ELF object
func (img *Image) Payload(r io.ReaderAt) *io.SectionReader {
	return io.NewSectionReader(r, int64(img.HeaderSize()), int64(img.PayloadSize()))
}

// Verify checks that the header block is exactly what PEWriter produces for
// the image's own entry point and size. The first differing byte is reported.
func (img *Image) Verify() error {
	if img.ImageSize() < img.HeaderSize() {
		return errors.Wrapf(ErrNotWrappedImage, "image size %d is smaller than the %d byte header", img.ImageSize(), img.HeaderSize())
	}
	want, err := HeaderBytes(img.Plan())
	if err != nil {
		return err
	}
	for i := range want {
		if img.raw[i] != want[i] {
			return errors.Wrapf(ErrNotWrappedImage, "header byte at offset 0x%x is 0x%02x, expected 0x%02x", i, img.raw[i], want[i])
		}
	}
	return nil
}

// InspectImage reads a wrapped image and runs the ELF inspector on its payload
func InspectImage(r io.ReaderAt) (*Image, ELFSummary, error) {
	img, err := ReadImage(r)
	if err != nil {
		return nil, ELFSummary{}, err
	}
	payload := img.Payload(r)
	summary, err := Inspect(payload, payload.Size())
	if err != nil {
		return img, ELFSummary{}, errors.Wrap(err, "embedded payload")
	}
	if summary.Class != img.Class {
		logging.Warningf("payload is %s but the image header is %s", summary.Class, img.Class)
	}
	return img, summary, nil
}
