// Completion: 100% - Utility module complete
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/xyproto/elf2efi/internal/logging"
	"github.com/xyproto/elf2efi/internal/wrapper"
)

// cli.go - command-line interface for elf2efi
//
// - elf2efi <ELF shared object> <output file> (convert)
// - elf2efi inspect <file> (show and verify image headers)
// - elf2efi watch <ELF shared object> <output file> (convert on change)

const convertUsage = "elf2efi [flags] <ELF shared object> <output file>"

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Config
	ShowVersion bool
	Stdout      io.Writer
	Stderr      io.Writer
}

func newRootCommand(ctx *CommandContext) *cobra.Command {
	root := &cobra.Command{
		Use:   convertUsage,
		Short: "Wrap an ELF shared object in a minimal EFI application image",
		Long: `elf2efi prepends a PE32 or PE32+ header to an i386 or x86_64 ELF shared
object, so that UEFI firmware can load it as an EFI application. The ELF
object itself is copied unchanged and its entry point becomes the image
entry point.`,
		Args:              positionalArgs(ctx, 2, convertUsage),
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return ctx.apply() },
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.ShowVersion {
				fmt.Fprintln(ctx.Stdout, versionString)
				return nil
			}
			return cmdConvert(ctx, args[0], args[1])
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return UsageError(err.Error())
	})

	ctx.bindFlags(root.PersistentFlags())
	root.Flags().BoolVarP(&ctx.ShowVersion, "version", "V", false, "print version information and exit")

	root.AddCommand(
		&cobra.Command{
			Use:     "inspect <file>",
			Short:   "Show and verify the headers of an EFI image, or preview the wrapping of an ELF object",
			Example: "elf2efi inspect BOOTX64.EFI",
			Args:    positionalArgs(ctx, 1, "elf2efi inspect <file>"),
			RunE: func(cmd *cobra.Command, args []string) error {
				return cmdInspect(ctx, args[0])
			},
		},
		&cobra.Command{
			Use:     "watch <ELF shared object> <output file>",
			Short:   "Convert, then convert again whenever the input changes",
			Example: "elf2efi watch loader.so BOOTX64.EFI",
			Args:    positionalArgs(ctx, 2, "elf2efi watch <ELF shared object> <output file>"),
			RunE: func(cmd *cobra.Command, args []string) error {
				return cmdWatch(ctx, args[0], args[1])
			},
		},
	)
	return root
}

// bindFlags registers the flags shared by all commands. The current
// configuration, read from the environment, provides the defaults.
func (ctx *CommandContext) bindFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(&ctx.Verbose, "verbose", "v", ctx.Verbose, "verbose mode (show the header layout and debug messages)")
	flags.BoolVarP(&ctx.Quiet, "quiet", "q", ctx.Quiet, "quiet mode (only show errors)")
	flags.BoolVar(&ctx.Direct, "direct", ctx.Direct, "write straight into the output file instead of replacing it atomically")
	flags.BoolVar(&ctx.NoColor, "no-color", ctx.NoColor, "disable colored output")
	flags.StringVar(&ctx.Class, "class", ctx.Class, "require the input to be of this class (32 or 64)")
}

func positionalArgs(ctx *CommandContext, n int, usage string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if ctx.ShowVersion || len(args) == n {
			return nil
		}
		return UsageError("usage: " + usage)
	}
}

// apply pushes the configuration into the logging package
func (ctx *CommandContext) apply() error {
	logging.SetOutput(ctx.Stderr)
	logging.SetLevel(ctx.LogLevel())
	if ctx.NoColor {
		logging.SetColor(false)
	}
	return nil
}

func (ctx *CommandContext) options() (wrapper.Options, error) {
	opts := wrapper.Options{Direct: ctx.Direct}
	if ctx.Class != "" {
		class, err := wrapper.ParseClass(ctx.Class)
		if err != nil {
			return opts, UsageError(err.Error())
		}
		opts.ExpectClass = class
	}
	return opts, nil
}

// cmdConvert wraps one ELF shared object
// Confidence that this function is working: 95%
func cmdConvert(ctx *CommandContext, inPath, outPath string) error {
	opts, err := ctx.options()
	if err != nil {
		return err
	}
	plan, err := wrapper.WrapFile(inPath, outPath, opts)
	if err != nil {
		return err
	}
	logging.Successf("%s: %s EFI image, entry point 0x%x, %d bytes", outPath, plan.Class, plan.EntryPoint, plan.ImageSize)
	logging.Debugf("removable media boot path for this image: EFI/BOOT/%s", plan.Class.BootFileName())
	return nil
}

// cmdInspect prints the headers of a wrapped image and verifies them.
// For a raw ELF object it prints the headers elf2efi would write.
// Confidence that this function is working: 85%
func cmdInspect(ctx *CommandContext, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open image")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat image")
	}

	img, summary, err := wrapper.InspectImage(f)
	if errors.Is(err, wrapper.ErrNotWrappedImage) {
		// Not an image, maybe an object that has not been wrapped yet
		if s, elfErr := wrapper.Inspect(io.NewSectionReader(f, 0, info.Size()), info.Size()); elfErr == nil {
			return inspectELF(ctx, path, s)
		}
	}
	if err != nil && img == nil {
		return err
	}

	rows := imageRows(img)
	if err == nil {
		rows = append(rows,
			[]string{"Payload class", summary.Class.String()},
			[]string{"Payload machine", summary.Machine.String()},
			[]string{"Payload type", summary.Type.String()},
			[]string{"Payload entry", fmt.Sprintf("0x%x", summary.Entry)},
		)
	} else {
		logging.Warningf("%s: cannot read the embedded ELF object: %v", path, err)
	}

	verifyErr := img.Verify()
	if verifyErr == nil && uint64(info.Size()) != uint64(img.ImageSize()) {
		verifyErr = errors.Wrapf(wrapper.ErrNotWrappedImage, "file is %d bytes, the headers describe %d", info.Size(), img.ImageSize())
	}
	status := "ok"
	if verifyErr != nil {
		status = "FAILED"
	}
	rows = append(rows, []string{"Verification", status})

	fmt.Fprintf(ctx.Stdout, "%s:\n", path)
	renderTable(ctx, rows)
	return verifyErr
}

func inspectELF(ctx *CommandContext, path string, s wrapper.ELFSummary) error {
	plan, err := wrapper.NewHeaderPlan(s)
	if err != nil {
		return err
	}
	rows := [][]string{
		{"ELF class", s.Class.String()},
		{"ELF machine", s.Machine.String()},
		{"ELF type", s.Type.String()},
		{"ELF entry", fmt.Sprintf("0x%x", s.Entry)},
		{"Size", fmt.Sprintf("%d", s.PayloadSize)},
		{"PE format", peFormat(plan.Class)},
		{"Header size", fmt.Sprintf("%d", plan.HeaderSize)},
		{"Entry point", fmt.Sprintf("0x%x", plan.EntryPoint)},
		{"Image size", fmt.Sprintf("%d", plan.ImageSize)},
		{"Boot file name", plan.Class.BootFileName()},
	}
	fmt.Fprintf(ctx.Stdout, "%s (ELF object, not wrapped yet):\n", path)
	renderTable(ctx, rows)
	return nil
}

func imageRows(img *wrapper.Image) [][]string {
	return [][]string{
		{"PE format", peFormat(img.Class)},
		{"Machine", fmt.Sprintf("0x%x (%s)", img.COFF.Machine, img.Class.Arch())},
		{"Sections", fmt.Sprintf("%s, %s", wrapper.SectionName(img.Text), wrapper.SectionName(img.Reloc))},
		{"Header size", fmt.Sprintf("%d", img.HeaderSize())},
		{"Entry point", fmt.Sprintf("0x%x", img.EntryPoint())},
		{"Original entry", fmt.Sprintf("0x%x", img.OriginalEntry())},
		{"Image size", fmt.Sprintf("%d", img.ImageSize())},
		{"Payload size", fmt.Sprintf("%d", img.PayloadSize())},
		{".reloc at", fmt.Sprintf("0x%x", img.Reloc.VirtualAddress)},
	}
}

func peFormat(c wrapper.Class) string {
	if c == wrapper.Class32 {
		return "PE32"
	}
	return "PE32+"
}

func renderTable(ctx *CommandContext, rows [][]string) {
	table := tablewriter.NewWriter(ctx.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.SetBorder(true)
	table.SetAutoWrapText(false)
	if !ctx.NoColor && !color.NoColor {
		table.SetHeaderColor(tablewriter.Colors{tablewriter.Bold, tablewriter.FgCyanColor},
			tablewriter.Colors{tablewriter.Bold, tablewriter.FgCyanColor})
		table.SetColumnColor(tablewriter.Colors{tablewriter.FgHiBlueColor},
			tablewriter.Colors{tablewriter.Normal})
	}
	table.AppendBulk(rows)
	table.Render()
}

// cmdWatch converts once and then again whenever the input changes
// Confidence that this function is working: 80%
func cmdWatch(ctx *CommandContext, inPath, outPath string) error {
	absPath, err := filepath.Abs(inPath)
	if err != nil {
		return err
	}
	if _, err := ctx.options(); err != nil {
		return err
	}

	var mu sync.Mutex
	reconvert := func(trigger string) {
		mu.Lock()
		defer mu.Unlock()

		logging.Infof("[%s] %s", time.Now().Format("15:04:05"), trigger)
		if err := cmdConvert(ctx, absPath, outPath); err != nil {
			fmt.Fprint(ctx.Stderr, classifyError(err).Format(!ctx.NoColor && !color.NoColor))
		}
	}

	logging.Infof("Watch mode enabled - monitoring %s", absPath)
	if stop := setupReloadSignal(reconvert); stop != nil {
		logging.Infof("Press Ctrl+C to stop, or send SIGUSR1 to convert again (kill -USR1 %d)", os.Getpid())
		defer stop()
	}

	reconvert("Initial conversion")

	watcher, err := NewFileWatcher(func(path string) {
		reconvert(fmt.Sprintf("File changed: %s", filepath.Base(path)))
	})
	if err != nil {
		return errors.Wrap(err, "create file watcher")
	}
	if err := watcher.AddFile(absPath); err != nil {
		watcher.Close()
		return errors.Wrap(err, "watch input")
	}

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() {
		<-sigCtx.Done()
		watcher.Close()
	}()

	watcher.Watch()
	logging.Infof("Stopped watching %s", filepath.Base(absPath))
	return nil
}
