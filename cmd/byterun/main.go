// byterun CLI - runs compiled units on the byterun VM
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/byterun/archive"
	"github.com/chazu/byterun/loader"
	"github.com/chazu/byterun/manifest"
	"github.com/chazu/byterun/vm"
	"github.com/muesli/termenv"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("byterun")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options are the parsed command line.
type options struct {
	module     bool
	verbose    bool
	configPath string
	dis        bool
	pack       string
	logFile    string
	args       []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("byterun", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.BoolVar(&opts.module, "m", false, "Run a module from the search path instead of a unit file")
	fs.BoolVar(&opts.verbose, "v", false, "Trace every instruction (debug logging)")
	fs.StringVar(&opts.configPath, "config", "", "Path to byterun.toml (default: search upward from the working directory)")
	fs.BoolVar(&opts.dis, "dis", false, "Disassemble the unit instead of running it")
	fs.StringVar(&opts.pack, "pack", "", "Pack the unit files under the given directories into this archive")
	fs.StringVar(&opts.logFile, "log", "", "Write log output to this file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: byterun [options] <unit.byc | module> [args...]\n\n")
		fmt.Fprintf(stderr, "Runs a compiled unit as the main program.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  byterun prog.byc a b          # Run prog.byc with sys.argv = ['prog.byc', 'a', 'b']\n")
		fmt.Fprintf(stderr, "  byterun -m app.tool           # Run app/tool.byc or app/tool/__main__.byc\n")
		fmt.Fprintf(stderr, "  byterun -dis prog.byc         # Disassemble prog.byc\n")
		fmt.Fprintf(stderr, "  byterun -pack units.db build  # Pack build/**/*.byc into units.db\n")
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.args = fs.Args()
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	m, err := loadManifest(opts.configPath)
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	configureLogging(opts, m)

	if opts.pack != "" {
		return packUnits(opts, stdout, stderr)
	}

	target, argv, moduleMode := chooseTarget(opts, m)
	if target == "" {
		fmt.Fprintf(stderr, "byterun: no unit or module to run\n")
		return 2
	}

	vmOpts := []vm.Option{vm.WithStdout(stdout), vm.WithMaxDepth(maxDepth(m))}
	if opts.verbose {
		vmOpts = append(vmOpts, vm.WithTracer(traceInstruction))
	}
	machine := vm.NewVM(vmOpts...)

	var searchPath []string
	if m != nil {
		searchPath = m.SearchPath()
	}
	l := loader.New(machine, searchPath...)
	defer l.Close()

	if opts.dis {
		return disassembleTarget(l, target, moduleMode, stdout, stderr)
	}

	if moduleMode {
		_, err = l.RunModule(target, argv)
	} else {
		_, err = l.RunFile(target, argv)
	}
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return manifest.FindAndLoad(wd)
}

func configureLogging(opts *options, m *manifest.Manifest) {
	verbosity := 0
	var path *string
	if m != nil {
		verbosity = m.Log.Verbosity
		if f := m.LogFile(); f != "" {
			path = &f
		}
	}
	if opts.verbose && verbosity < 2 {
		verbosity = 2
	}
	if opts.logFile != "" {
		path = &opts.logFile
	}
	commonlog.Configure(verbosity, path)
}

// chooseTarget picks what to run: the first positional argument, or the
// manifest's entry or module.
func chooseTarget(opts *options, m *manifest.Manifest) (string, []string, bool) {
	if len(opts.args) > 0 {
		return opts.args[0], opts.args, opts.module
	}
	if m == nil {
		return "", nil, false
	}
	if m.Run.Module != "" {
		return m.Run.Module, append([]string{m.Run.Module}, m.Run.Argv...), true
	}
	if entry := m.EntryPath(); entry != "" {
		return entry, append([]string{entry}, m.Run.Argv...), false
	}
	return "", nil, false
}

// maxDepth is the manifest's frame limit; 0 means unbounded.
func maxDepth(m *manifest.Manifest) int {
	if m != nil {
		return m.FrameLimit()
	}
	return manifest.DefaultMaxDepth
}

// ---------------------------------------------------------------------------
// Modes
// ---------------------------------------------------------------------------

func packUnits(opts *options, stdout, stderr io.Writer) int {
	a, err := archive.Open(opts.pack)
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	defer a.Close()

	dirs := opts.args
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	total := 0
	for _, dir := range dirs {
		packed, err := a.PackDir(dir)
		if err != nil {
			reportError(stderr, err)
			return 1
		}
		total += len(packed)
	}
	fmt.Fprintf(stdout, "packed %d units into %s\n", total, opts.pack)
	return 0
}

func disassembleTarget(l *loader.Loader, target string, moduleMode bool, stdout, stderr io.Writer) int {
	var code *vm.Code
	var err error
	if moduleMode {
		code, _, _, err = l.FindModule(target)
	} else {
		code, err = l.LoadFile(target)
	}
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	disassemble(stdout, code, true)
	return 0
}

// disassemble prints code and every code object among its constants.
func disassemble(w io.Writer, code *vm.Code, top bool) {
	if !top {
		fmt.Fprintf(w, "\nDisassembly of %s:\n", vm.Repr(code))
	}
	fmt.Fprint(w, vm.Disassemble(code))
	for _, c := range code.Consts {
		if nested, ok := c.(*vm.Code); ok {
			disassemble(w, nested, false)
		}
	}
}

var traceLog = commonlog.GetLogger("byterun.trace")

func traceInstruction(f *vm.Frame, offset int, op vm.Opcode, arg int) {
	if op.HasArg() {
		traceLog.Debugf("%s:%d %04d %s %d", f.Code.Name, f.Code.LineForOffset(offset), offset, op.Name(), arg)
	} else {
		traceLog.Debugf("%s:%d %04d %s", f.Code.Name, f.Code.LineForOffset(offset), offset, op.Name())
	}
}

// ---------------------------------------------------------------------------
// Error reporting
// ---------------------------------------------------------------------------

// reportError logs err and writes a traceback or message to w, with the
// exception lines coloured when w is a terminal.
func reportError(w io.Writer, err error) {
	o := termenv.NewOutput(w)
	exc, ok := vm.AsException(err)
	if !ok {
		log.Errorf("%v", err)
		fmt.Fprintln(w, o.String("byterun: "+err.Error()).Foreground(o.Color("1")).Bold())
		return
	}

	log.Errorf("uncaught %s", exc.Kind())
	for _, line := range strings.SplitAfter(exc.FormatTraceback(), "\n") {
		if line == "" {
			continue
		}
		if isExceptionLine(line) {
			fmt.Fprintln(w, o.String(strings.TrimSuffix(line, "\n")).Foreground(o.Color("1")).Bold())
			continue
		}
		fmt.Fprint(w, line)
	}
}

func isExceptionLine(line string) bool {
	switch {
	case line == "\n",
		strings.HasPrefix(line, " "),
		strings.HasPrefix(line, "Traceback"),
		strings.HasPrefix(line, "During handling"),
		strings.HasPrefix(line, "The above exception"):
		return false
	}
	return true
}
