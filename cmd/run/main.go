package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-vm/engine"
	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/linker"
	"github.com/wippyai/wasm-vm/runtime"
	"github.com/wippyai/wasm-vm/wasm"
)

// Exit codes: 0 success, then one bucket per failing phase.
const (
	exitOK = iota
	exitUsage
	exitDecode
	exitValidate
	exitLink
	exitInstantiate
	exitTrap
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to wasm module file")
		funcName    = flag.String("func", "", "Function to call (optional)")
		funcArgs    = flag.String("args", "", "Comma-separated numeric arguments")
		modName     = flag.String("name", "main", "Module instance name")
		maxPages    = flag.Uint("max-pages", 65536, "Memory cap in 64 KiB pages")
		list        = flag.Bool("list", false, "List exported functions and exit")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args 1,2,3]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(exitUsage)
	}

	if *verbose {
		l, _ := zap.NewDevelopment()
		engine.SetLogger(l)
		linker.SetLogger(l)
		runtime.SetLogger(l)
	}

	if *interactive {
		if err := runInteractive(*wasmFile, *modName, uint32(*maxPages)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitCode(err))
		}
		return
	}

	if err := run(*wasmFile, *modName, *funcName, *funcArgs, uint32(*maxPages), *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto the process exit buckets.
func exitCode(err error) int {
	if errors.AsTrap(err) != nil {
		return exitTrap
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		switch e.Phase {
		case errors.PhaseDecode:
			return exitDecode
		case errors.PhaseValidate:
			return exitValidate
		case errors.PhaseLink:
			return exitLink
		case errors.PhaseInstantiate:
			return exitInstantiate
		case errors.PhaseExec:
			return exitTrap
		}
	}
	return exitUsage
}

func run(wasmFile, modName, funcName, funcArgs string, maxPages uint32, listOnly bool) error {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	module, err := runtime.Load(data)
	if err != nil {
		return err
	}

	fmt.Printf("Module: %s\n", wasmFile)
	fmt.Printf("Functions: %d (%d imported)\n",
		module.NumImportedFuncs()+len(module.Funcs), module.NumImportedFuncs())
	fmt.Printf("Exports: %d\n", len(module.Exports))

	exported := exportedFunctions(module)
	if len(exported) > 0 {
		fmt.Printf("\nExported functions:\n")
		for _, f := range exported {
			fmt.Printf("  %s\n", f.signature)
		}
	}
	if listOnly {
		return nil
	}

	rt := runtime.New(runtime.WithMemoryMaxPages(maxPages))
	if _, err := rt.Instantiate(module, modName, linker.ModeInstantiate); err != nil {
		return err
	}

	if funcName == "" {
		return nil
	}

	fn, ok := findExport(exported, funcName)
	if !ok {
		return errors.NotFound(errors.PhaseExec, "function", funcName)
	}
	args, err := parseArgs(funcArgs, fn.typ.Params)
	if err != nil {
		return err
	}

	results, err := rt.Invoke(modName, funcName, args...)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Println(r)
	}
	return nil
}

type exportedFunc struct {
	name      string
	signature string
	typ       wasm.FuncType
}

func exportedFunctions(m *wasm.Module) []exportedFunc {
	var out []exportedFunc
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindFunc {
			continue
		}
		ft := m.GetFuncType(exp.Idx)
		if ft == nil {
			continue
		}
		out = append(out, exportedFunc{
			name:      exp.Name,
			signature: formatSignature(exp.Name, *ft),
			typ:       *ft,
		})
	}
	return out
}

func findExport(funcs []exportedFunc, name string) (exportedFunc, bool) {
	for _, f := range funcs {
		if f.name == name {
			return f, true
		}
	}
	return exportedFunc{}, false
}

func formatSignature(name string, ft wasm.FuncType) string {
	params := make([]string, len(ft.Params))
	for i, p := range ft.Params {
		params[i] = p.String()
	}
	sig := fmt.Sprintf("%s(%s)", name, strings.Join(params, ", "))
	if len(ft.Results) > 0 {
		results := make([]string, len(ft.Results))
		for i, r := range ft.Results {
			results[i] = r.String()
		}
		sig += " -> " + strings.Join(results, ", ")
	}
	return sig
}

// parseArgs converts comma-separated literals to typed values per the
// function signature.
func parseArgs(raw string, params []wasm.ValType) ([]any, error) {
	var parts []string
	if raw != "" {
		parts = strings.Split(raw, ",")
	}
	if len(parts) != len(params) {
		return nil, fmt.Errorf("function takes %d arguments, got %d", len(params), len(parts))
	}
	args := make([]any, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch params[i] {
		case wasm.ValI32:
			v, err := strconv.ParseInt(p, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = int32(v)
		case wasm.ValI64:
			v, err := strconv.ParseInt(p, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = v
		case wasm.ValF32:
			v, err := strconv.ParseFloat(p, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = float32(v)
		case wasm.ValF64:
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			args[i] = v
		}
	}
	return args, nil
}
