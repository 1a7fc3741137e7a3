// Completion: 100% - Utility module complete
package wrapper

import (
	"debug/elf"
	"debug/pe"
	"strings"

	"github.com/pkg/errors"
)

// Class is the bit width of the wrapped ELF object
type Class int

const (
	ClassUnknown Class = iota
	Class32
	Class64
)

func (c Class) String() string {
	switch c {
	case Class32:
		return "ELF32"
	case Class64:
		return "ELF64"
	default:
		return "unknown"
	}
}

// ParseClass parses a class name like "32", "elf64", "amd64" or "i386"
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(s) {
	case "32", "elf32", "386", "i386", "ia32", "x86":
		return Class32, nil
	case "64", "elf64", "amd64", "x86_64", "x86-64", "x64":
		return Class64, nil
	default:
		return ClassUnknown, errors.Errorf("unsupported class: %s (supported: 32, 64)", s)
	}
}

// classFromIdent maps the EI_CLASS identification byte to a Class
func classFromIdent(b byte) Class {
	switch elf.Class(b) {
	case elf.ELFCLASS32:
		return Class32
	case elf.ELFCLASS64:
		return Class64
	default:
		return ClassUnknown
	}
}

// Machine returns the COFF machine type written for this class
func (c Class) Machine() uint16 {
	switch c {
	case Class32:
		return pe.IMAGE_FILE_MACHINE_I386
	case Class64:
		return pe.IMAGE_FILE_MACHINE_AMD64
	default:
		return pe.IMAGE_FILE_MACHINE_UNKNOWN
	}
}

// ELFMachine is the ELF machine a payload of this class is expected to have
func (c Class) ELFMachine() elf.Machine {
	switch c {
	case Class32:
		return elf.EM_386
	case Class64:
		return elf.EM_X86_64
	default:
		return elf.EM_NONE
	}
}

// Arch returns the GOARCH style name of the target
func (c Class) Arch() string {
	switch c {
	case Class32:
		return "386"
	case Class64:
		return "amd64"
	default:
		return "unknown"
	}
}

// BootFileName is the file name UEFI looks for on removable media
func (c Class) BootFileName() string {
	switch c {
	case Class32:
		return "BOOTIA32.EFI"
	case Class64:
		return "BOOTX64.EFI"
	default:
		return ""
	}
}
