// Completion: 100% - Header layout arithmetic complete
package wrapper

import (
	"math"

	"github.com/pkg/errors"
	"github.com/xyproto/elf2efi/internal/logging"
)

// On-disk sizes of the records in the header block, all packed
const (
	dosStubSize          = 68 // MS-DOS header up to and including "PE\0\0"
	coffHeaderSize       = 20
	optionalHeader32Size = 28 // PE32 has BaseOfData
	optionalHeader64Size = 24
	extraHeader32Size    = 116
	extraHeader64Size    = 136
	sectionHeaderSize    = 40
	baseRelocSize        = 10
	fillerSize           = 4

	headerCommonSize = dosStubSize + coffHeaderSize + 2*sectionHeaderSize + baseRelocSize + fillerSize

	// HeaderSize32 is the length of the header block in front of an ELF32 payload
	HeaderSize32 = headerCommonSize + optionalHeader32Size + extraHeader32Size // 326
	// HeaderSize64 is the length of the header block in front of an ELF64 payload
	HeaderSize64 = headerCommonSize + optionalHeader64Size + extraHeader64Size // 342
)

var ErrImageTooLarge = errors.New("image does not fit in 32-bit PE size fields")

// HeaderSize returns the header block length for the given class, or 0
func HeaderSize(c Class) uint32 {
	switch c {
	case Class32:
		return HeaderSize32
	case Class64:
		return HeaderSize64
	default:
		return 0
	}
}

// optionalHeaderSize is the SizeOfOptionalHeader value: optional plus extra header
func optionalHeaderSize(c Class) uint16 {
	switch c {
	case Class32:
		return optionalHeader32Size + extraHeader32Size
	case Class64:
		return optionalHeader64Size + extraHeader64Size
	default:
		return 0
	}
}

// HeaderPlan is the computed layout of an output image
type HeaderPlan struct {
	Class       Class
	HeaderSize  uint32 // bytes written before the payload
	EntryPoint  uint32 // ELF entry point shifted by HeaderSize
	ImageSize   uint32 // payload size plus HeaderSize
	PayloadSize uint64
}

// NewHeaderPlan derives the output layout from an ELF summary. It does no I/O.
//
// The whole file, headers included, is presented as one section starting at
// RVA 0, so the ELF entry point moves forward by exactly the header length.
func NewHeaderPlan(s ELFSummary) (HeaderPlan, error) {
	h := HeaderSize(s.Class)
	if h == 0 {
		return HeaderPlan{}, errors.Wrapf(ErrUnsupportedClass, "class %s", s.Class)
	}
	if s.PayloadSize > math.MaxUint32-uint64(h) {
		return HeaderPlan{}, errors.Wrapf(ErrImageTooLarge, "payload is %d bytes", s.PayloadSize)
	}

	p := HeaderPlan{
		Class:       s.Class,
		HeaderSize:  h,
		EntryPoint:  s.Entry32() + h,
		ImageSize:   uint32(s.PayloadSize) + h,
		PayloadSize: s.PayloadSize,
	}
	p.logLayout()
	return p, nil
}

// OriginalEntry returns the entry point relative to the start of the payload
func (p HeaderPlan) OriginalEntry() uint32 {
	return p.EntryPoint - p.HeaderSize
}

// relocSectionOffset is where the .reloc section table entry starts
func (p HeaderPlan) relocSectionOffset() uint32 {
	return p.HeaderSize - fillerSize - baseRelocSize - sectionHeaderSize
}

func (p HeaderPlan) logLayout() {
	if logging.Level() < logging.LevelDebug {
		return
	}
	optSize := uint32(optionalHeaderSize(p.Class))
	coff := uint32(dosStubSize)
	opt := coff + coffHeaderSize
	text := opt + optSize
	reloc := p.relocSectionOffset()
	logging.Debugf("=== PE Layout (%s, header=%d bytes) ===", p.Class, p.HeaderSize)
	logging.Debugf("  dos stub:      offset=0x%03x size=%d", 0, dosStubSize)
	logging.Debugf("  coff header:   offset=0x%03x size=%d", coff, coffHeaderSize)
	logging.Debugf("  optional hdr:  offset=0x%03x size=%d", opt, optSize)
	logging.Debugf("  .text entry:   offset=0x%03x size=%d", text, sectionHeaderSize)
	logging.Debugf("  .reloc entry:  offset=0x%03x size=%d", reloc, sectionHeaderSize)
	logging.Debugf("  base reloc:    offset=0x%03x size=%d", reloc+sectionHeaderSize, baseRelocSize)
	logging.Debugf("  payload:       offset=0x%03x size=%d", p.HeaderSize, p.PayloadSize)
	logging.Debugf("  entry point:   0x%x (ELF 0x%x)", p.EntryPoint, p.OriginalEntry())
}
