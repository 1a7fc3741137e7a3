// Completion: 100% - Output assembly complete
package wrapper

import (
	"bufio"
	"io"
	"os"

	"github.com/moby/sys/atomicwriter"
	"github.com/pkg/errors"
	"github.com/xyproto/elf2efi/internal/logging"
)

var (
	ErrShortPayload  = errors.New("input ended before the expected payload size")
	ErrClassMismatch = errors.New("ELF class does not match the requested class")
)

// Options control how WrapFile writes the output
type Options struct {
	// Direct streams into the output path instead of writing a temporary
	// file and renaming it. A failed conversion removes the partial output.
	Direct bool
	// Perm is the mode of a newly created output file, 0644 when zero
	Perm os.FileMode
	// ExpectClass rejects inputs of another class unless it is ClassUnknown
	ExpectClass Class
}

func (o Options) perm() os.FileMode {
	if o.Perm == 0 {
		return 0o644
	}
	return o.Perm
}

// Wrap writes the header block for s to w, followed by exactly
// s.PayloadSize bytes copied from payload. It returns the bytes written.
func Wrap(w io.Writer, payload io.Reader, s ELFSummary) (int64, error) {
	p, err := NewHeaderPlan(s)
	if err != nil {
		return 0, err
	}
	return writeImage(w, payload, p)
}

func writeImage(w io.Writer, payload io.Reader, p HeaderPlan) (int64, error) {
	pw := NewPEWriter(w)
	if err := pw.WriteHeader(p); err != nil {
		return pw.Len(), err
	}
	n, err := io.CopyN(w, payload, int64(p.PayloadSize))
	total := pw.Len() + n
	if err == io.EOF {
		return total, errors.Wrapf(ErrShortPayload, "copied %d of %d bytes", n, p.PayloadSize)
	}
	if err != nil {
		return total, errors.Wrap(err, "copy payload")
	}
	logging.Debugf("wrote %d bytes (%d header + %d payload)", total, p.HeaderSize, n)
	return total, nil
}

// WrapFile converts the ELF shared object at inPath into an EFI image at
// outPath. Nothing is written unless the input passes inspection.
func WrapFile(inPath, outPath string, opts Options) (HeaderPlan, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return HeaderPlan{}, errors.Wrap(err, "open input")
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return HeaderPlan{}, errors.Wrap(err, "stat input")
	}
	summary, err := Inspect(in, info.Size())
	if err != nil {
		return HeaderPlan{}, err
	}
	if opts.ExpectClass != ClassUnknown && summary.Class != opts.ExpectClass {
		return HeaderPlan{}, errors.Wrapf(ErrClassMismatch, "%s is %s, expected %s", inPath, summary.Class, opts.ExpectClass)
	}
	plan, err := NewHeaderPlan(summary)
	if err != nil {
		return HeaderPlan{}, err
	}

	// The payload is the whole input file, ELF header included
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return HeaderPlan{}, errors.Wrap(err, "rewind input")
	}

	if opts.Direct {
		err = writeDirect(in, info, outPath, plan, opts.perm())
	} else {
		err = writeAtomic(in, outPath, plan, opts.perm())
	}
	if err != nil {
		return HeaderPlan{}, err
	}
	logging.Debugf("%s -> %s: %s image, %d bytes", inPath, outPath, plan.Class, plan.ImageSize)
	return plan, nil
}

func writeAtomic(in io.Reader, outPath string, plan HeaderPlan, perm os.FileMode) error {
	buf := NewSafeBuffer(outPath)
	buf.Grow(int(plan.ImageSize))
	if _, err := writeImage(buf, in, plan); err != nil {
		return err
	}
	buf.Commit()
	if err := atomicwriter.WriteFile(outPath, buf.Bytes(), perm); err != nil {
		return errors.Wrap(err, "write output")
	}
	return nil
}

func writeDirect(in io.Reader, inInfo os.FileInfo, outPath string, plan HeaderPlan, perm os.FileMode) (err error) {
	// Truncating the input would destroy the payload before it is read
	if outInfo, statErr := os.Stat(outPath); statErr == nil && os.SameFile(inInfo, outInfo) {
		return errors.Errorf("output %s is the input file", outPath)
	}

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer func() {
		if err != nil {
			out.Close()
			if rmErr := os.Remove(outPath); rmErr != nil {
				logging.Warningf("could not remove partial output %s: %v", outPath, rmErr)
			}
		}
	}()

	bw := bufio.NewWriter(out)
	if _, err = writeImage(bw, in, plan); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return errors.Wrap(err, "write output")
	}
	if err = out.Close(); err != nil {
		return errors.Wrap(err, "close output")
	}
	return nil
}
