// Completion: 100% - PE32/PE32+ header records for EFI images complete
package wrapper

import (
	"debug/pe"
)

// PE/COFF constants for the EFI wrapper
const (
	msdosSignature = 0x5A4D     // "MZ"
	peSignature    = 0x00004550 // "PE\0\0"

	pe32Magic     = 0x10b
	pe32PlusMagic = 0x20b

	// The relocs table pointer must be >= 0x40 for PE files. It tells
	// file(1) and friends that this is not an MS-DOS executable.
	dosRelocsPtr = 0x40
	// Offset of the PE signature within the stub
	peHeaderOffset = 0x40

	linkerMajorVersion = 0x02
	linkerMinorVersion = 0x14

	efiSectionAlign = 4096
	efiFileAlign    = 512
	efiHeadersSize  = 512

	// Some loaders require one data directory even though it stays empty
	rvaAndSizes        = 1
	dataDirectorySlots = 6

	numSections      = 2
	numSymbols       = 1
	relocSymtabIndex = 10

	// Section alignment flags, not defined by debug/pe
	scnAlign1Bytes  = 0x00100000
	scnAlign16Bytes = 0x00500000

	textCharacteristics = pe.IMAGE_SCN_CNT_CODE | scnAlign16Bytes |
		pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ
	relocCharacteristics = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | scnAlign1Bytes |
		pe.IMAGE_SCN_MEM_DISCARDABLE | pe.IMAGE_SCN_MEM_READ
)

// DOSStub is the MS-DOS header, cut short right after the PE signature
type DOSStub struct {
	Signature   uint16
	_           [0x16]byte
	RelocsPtr   uint16 // e_lfarlc, offset 0x18
	_           [0x22]byte
	PEOffset    uint32 // e_lfanew, offset 0x3c
	PESignature uint32
}

// OptionalHeader32 holds the PE32 standard fields
type OptionalHeader32 struct {
	Magic                   uint16
	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
	BaseOfData              uint32
}

// OptionalHeader64 holds the PE32+ standard fields. PE32+ has no BaseOfData.
type OptionalHeader64 struct {
	Magic                   uint16
	MajorLinkerVersion      uint8
	MinorLinkerVersion      uint8
	SizeOfCode              uint32
	SizeOfInitializedData   uint32
	SizeOfUninitializedData uint32
	AddressOfEntryPoint     uint32
	BaseOfCode              uint32
}

// ExtraHeader32 holds the PE32 Windows-specific fields and data directories
type ExtraHeader32 struct {
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [dataDirectorySlots]pe.DataDirectory
}

// ExtraHeader64 holds the PE32+ Windows-specific fields; base and stack/heap sizes are 64-bit
type ExtraHeader64 struct {
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [dataDirectorySlots]pe.DataDirectory
}

// Variant is the class-specific part of the header block: the optional
// header and the Windows-specific header right after it.
// It is either *PE32Headers or *PE32PlusHeaders.
type Variant interface {
	Class() Class
	EntryPoint() uint32
	ImageSize() uint32
	records() []interface{}
}

// PE32Headers is the Variant for 32-bit payloads
type PE32Headers struct {
	Optional OptionalHeader32
	Extra    ExtraHeader32
}

func (*PE32Headers) Class() Class { return Class32 }
func (h *PE32Headers) EntryPoint() uint32 { return h.Optional.AddressOfEntryPoint }
func (h *PE32Headers) ImageSize() uint32 { return h.Extra.SizeOfImage }
func (h *PE32Headers) records() []interface{} { return []interface{}{&h.Optional, &h.Extra} }

// PE32PlusHeaders is the Variant for 64-bit payloads
type PE32PlusHeaders struct {
	Optional OptionalHeader64
	Extra    ExtraHeader64
}

func (*PE32PlusHeaders) Class() Class { return Class64 }
func (h *PE32PlusHeaders) EntryPoint() uint32 { return h.Optional.AddressOfEntryPoint }
func (h *PE32PlusHeaders) ImageSize() uint32 { return h.Extra.SizeOfImage }
func (h *PE32PlusHeaders) records() []interface{} { return []interface{}{&h.Optional, &h.Extra} }

// HeaderBlock is every record written in front of the payload, in file order
type HeaderBlock struct {
	DOS     DOSStub
	COFF    pe.FileHeader
	Headers Variant
	Text    pe.SectionHeader32
	Reloc   pe.SectionHeader32
	Fixup   pe.Reloc
	Filler  uint32
}

// newHeaderBlock fills in every field that does not depend on the output
// position. The .reloc pointers are set by the writer.
func newHeaderBlock(p HeaderPlan) HeaderBlock {
	blk := HeaderBlock{
		DOS: DOSStub{
			Signature:   msdosSignature,
			RelocsPtr:   dosRelocsPtr,
			PEOffset:    peHeaderOffset,
			PESignature: peSignature,
		},
		COFF: pe.FileHeader{
			Machine:              p.Class.Machine(),
			NumberOfSections:     numSections,
			NumberOfSymbols:      numSymbols,
			SizeOfOptionalHeader: optionalHeaderSize(p.Class),
			Characteristics: pe.IMAGE_FILE_EXECUTABLE_IMAGE |
				pe.IMAGE_FILE_LINE_NUMS_STRIPPED |
				pe.IMAGE_FILE_DEBUG_STRIPPED,
		},
		Text: pe.SectionHeader32{
			Name:            sectionName(".text"),
			VirtualSize:     p.ImageSize,
			SizeOfRawData:   p.ImageSize,
			Characteristics: textCharacteristics,
		},
		Reloc: pe.SectionHeader32{
			Name:            sectionName(".reloc"),
			VirtualSize:     baseRelocSize,
			SizeOfRawData:   baseRelocSize,
			Characteristics: relocCharacteristics,
		},
		Fixup: pe.Reloc{
			SymbolTableIndex: relocSymtabIndex,
		},
	}

	switch p.Class {
	case Class32:
		blk.COFF.Characteristics |= pe.IMAGE_FILE_32BIT_MACHINE
		blk.Headers = &PE32Headers{
			Optional: OptionalHeader32{
				Magic:               pe32Magic,
				MajorLinkerVersion:  linkerMajorVersion,
				MinorLinkerVersion:  linkerMinorVersion,
				SizeOfCode:          p.ImageSize,
				AddressOfEntryPoint: p.EntryPoint,
			},
			Extra: ExtraHeader32{
				SectionAlignment:    efiSectionAlign,
				FileAlignment:       efiFileAlign,
				SizeOfImage:         p.ImageSize,
				SizeOfHeaders:       efiHeadersSize,
				Subsystem:           pe.IMAGE_SUBSYSTEM_EFI_APPLICATION,
				NumberOfRvaAndSizes: rvaAndSizes,
			},
		}
	case Class64:
		blk.Headers = &PE32PlusHeaders{
			Optional: OptionalHeader64{
				Magic:               pe32PlusMagic,
				MajorLinkerVersion:  linkerMajorVersion,
				MinorLinkerVersion:  linkerMinorVersion,
				SizeOfCode:          p.ImageSize,
				AddressOfEntryPoint: p.EntryPoint,
			},
			Extra: ExtraHeader64{
				SectionAlignment:    efiSectionAlign,
				FileAlignment:       efiFileAlign,
				SizeOfImage:         p.ImageSize,
				SizeOfHeaders:       efiHeadersSize,
				Subsystem:           pe.IMAGE_SUBSYSTEM_EFI_APPLICATION,
				NumberOfRvaAndSizes: rvaAndSizes,
			},
		}
	}
	return blk
}

// sectionName returns a null-padded 8 byte section name
func sectionName(name string) [8]uint8 {
	var b [8]uint8
	copy(b[:], name)
	return b
}

// SectionName returns the section name without the null padding
func SectionName(sh pe.SectionHeader32) string {
	n := 0
	for n < len(sh.Name) && sh.Name[n] != 0 {
		n++
	}
	return string(sh.Name[:n])
}
