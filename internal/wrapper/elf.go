// Completion: 100% - ELF header inspection complete
package wrapper

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/xyproto/elf2efi/internal/logging"
)

const (
	elf32HeaderSize = 52
	elf64HeaderSize = 64
)

var (
	ErrNotELF           = errors.New("input file not ELF shared object")
	ErrUnsupportedClass = errors.New("unsupported architecture")
	ErrTruncatedHeader  = errors.New("truncated ELF header")
)

// ELFSummary holds the facts the PE header synthesizer needs from the input
type ELFSummary struct {
	Class       Class
	Entry       uint64 // e_entry as read, before any adjustment
	PayloadSize uint64 // size of the whole input file
	Machine     elf.Machine
	Type        elf.Type
}

// Entry32 returns the entry point narrowed to the 32-bit PE field.
// PE32+ still uses a 32-bit RVA for AddressOfEntryPoint.
func (s ELFSummary) Entry32() uint32 {
	return uint32(s.Entry)
}

// InspectFile opens path and inspects its ELF header.
// The payload size is the size of the file.
func InspectFile(path string) (ELFSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return ELFSummary{}, errors.Wrap(err, "open input")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ELFSummary{}, errors.Wrap(err, "stat input")
	}
	return Inspect(f, info.Size())
}

// Inspect reads the ELF header from r, which must be positioned at offset 0.
// size is the payload size and is passed through unchanged.
func Inspect(r io.ReadSeeker, size int64) (ELFSummary, error) {
	if size < 0 {
		return ELFSummary{}, errors.Errorf("invalid input size %d", size)
	}

	// The 32-bit header is read first, it is enough to find the class
	raw, err := readHeaderBytes(r, elf32HeaderSize)
	if err != nil {
		return ELFSummary{}, err
	}
	if err := checkMagic(raw); err != nil {
		return ELFSummary{}, err
	}
	if len(raw) <= elf.EI_CLASS {
		return ELFSummary{}, errors.Wrapf(ErrTruncatedHeader, "only %d bytes", len(raw))
	}

	summary := ELFSummary{
		Class:       classFromIdent(raw[elf.EI_CLASS]),
		PayloadSize: uint64(size),
	}

	switch summary.Class {
	case Class32:
		if len(raw) < elf32HeaderSize {
			return ELFSummary{}, errors.Wrapf(ErrTruncatedHeader, "need %d bytes, got %d", elf32HeaderSize, len(raw))
		}
		var hdr elf.Header32
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr); err != nil {
			return ELFSummary{}, errors.Wrap(err, "decode ELF32 header")
		}
		summary.Entry = uint64(hdr.Entry)
		summary.Machine = elf.Machine(hdr.Machine)
		summary.Type = elf.Type(hdr.Type)
	case Class64:
		// The layouts differ after e_ident, so read the header again
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return ELFSummary{}, errors.Wrap(err, "rewind input")
		}
		raw, err = readHeaderBytes(r, elf64HeaderSize)
		if err != nil {
			return ELFSummary{}, err
		}
		if err := checkMagic(raw); err != nil {
			return ELFSummary{}, err
		}
		if len(raw) < elf64HeaderSize {
			return ELFSummary{}, errors.Wrapf(ErrTruncatedHeader, "need %d bytes, got %d", elf64HeaderSize, len(raw))
		}
		var hdr elf.Header64
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr); err != nil {
			return ELFSummary{}, errors.Wrap(err, "decode ELF64 header")
		}
		summary.Entry = hdr.Entry
		summary.Machine = elf.Machine(hdr.Machine)
		summary.Type = elf.Type(hdr.Type)
	default:
		return ELFSummary{}, errors.Wrapf(ErrUnsupportedClass, "ELF class %d", raw[elf.EI_CLASS])
	}

	logging.Debugf("ELF: class=%s machine=%s type=%s entry=0x%x size=%d",
		summary.Class, summary.Machine, summary.Type, summary.Entry, summary.PayloadSize)

	// Only warnings, the payload is not validated beyond magic and class
	if summary.Type != elf.ET_DYN {
		logging.Warningf("ELF type is %s, expected a shared object (ET_DYN)", summary.Type)
	}
	if want := summary.Class.ELFMachine(); summary.Machine != want {
		logging.Warningf("ELF machine is %s, expected %s for %s", summary.Machine, want, summary.Class)
	}
	if summary.Entry > math.MaxUint32 {
		logging.Warningf("entry point 0x%x does not fit in 32 bits, using 0x%x", summary.Entry, summary.Entry32())
	}

	return summary, nil
}

// readHeaderBytes reads up to n bytes. A short input is not an error here,
// the caller decides what is missing.
func readHeaderBytes(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errors.Wrap(err, "read ELF header")
	}
	return buf[:got], nil
}

func checkMagic(ident []byte) error {
	if len(ident) < len(elf.ELFMAG) || string(ident[:len(elf.ELFMAG)]) != elf.ELFMAG {
		return ErrNotELF
	}
	return nil
}
