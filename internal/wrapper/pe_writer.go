// pe_writer.go - PE header writer for EFI wrapped ELF objects
package wrapper

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/xyproto/elf2efi/internal/logging"
)

// PEWriter emits the header block to an output stream and keeps track of
// the output position, which the .reloc records point into.
type PEWriter struct {
	w     io.Writer
	pos   uint32
	block HeaderBlock
}

// NewPEWriter creates a writer for an output that starts at offset 0
func NewPEWriter(w io.Writer) *PEWriter {
	return &PEWriter{w: w}
}

// Len returns the number of bytes written so far
func (pw *PEWriter) Len() int64 {
	return int64(pw.pos)
}

// Block returns the header block as it was written
func (pw *PEWriter) Block() HeaderBlock {
	return pw.block
}

func (pw *PEWriter) write(name string, v interface{}) error {
	if err := binary.Write(pw.w, binary.LittleEndian, v); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	pw.pos += uint32(binary.Size(v))
	return nil
}

// WriteHeader writes the complete header block for the plan.
// Any write error aborts the header.
func (pw *PEWriter) WriteHeader(p HeaderPlan) error {
	if p.HeaderSize == 0 || p.HeaderSize != HeaderSize(p.Class) {
		return errors.Errorf("invalid header plan for class %s", p.Class)
	}
	start := pw.pos
	blk := newHeaderBlock(p)

	if err := pw.write("MS-DOS stub", &blk.DOS); err != nil {
		return err
	}
	if err := pw.write("COFF header", &blk.COFF); err != nil {
		return err
	}
	for _, rec := range blk.Headers.records() {
		if err := pw.write("optional header", rec); err != nil {
			return err
		}
	}
	if err := pw.write(".text section", &blk.Text); err != nil {
		return err
	}

	// Point .reloc at the relocation record right after this table entry
	blk.Reloc.VirtualAddress = pw.pos + sectionHeaderSize
	blk.Reloc.PointerToRawData = blk.Reloc.VirtualAddress
	if err := pw.write(".reloc section", &blk.Reloc); err != nil {
		return err
	}

	// The record points just past itself, at the filler
	blk.Fixup.VirtualAddress = pw.pos + baseRelocSize
	if err := pw.write("base relocation", &blk.Fixup); err != nil {
		return err
	}
	if err := pw.write("relocation filler", &blk.Filler); err != nil {
		return err
	}

	if written := pw.pos - start; written != p.HeaderSize {
		return errors.Errorf("wrote %d header bytes, planned %d", written, p.HeaderSize)
	}
	pw.block = blk

	logging.Debugf("PE header: %d bytes, machine=0x%x, entry=0x%x, image size=%d",
		p.HeaderSize, blk.COFF.Machine, p.EntryPoint, p.ImageSize)
	return nil
}

// HeaderBytes returns the serialized header block for the plan
func HeaderBytes(p HeaderPlan) ([]byte, error) {
	buf := NewSafeBuffer("pe header")
	if err := NewPEWriter(buf).WriteHeader(p); err != nil {
		return nil, err
	}
	buf.Commit()
	return buf.Bytes(), nil
}
