package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chazu/jsrt/compiler"
	"github.com/chazu/jsrt/compiler/hash"
	"github.com/chazu/jsrt/pkg/bytecode"
	"github.com/chazu/jsrt/vm"
	"github.com/robertkrimen/otto/parser"
)

// runner compiles and runs scripts in one realm.
type runner struct {
	realm   *vm.Realm
	cache   *codeCache
	strict  bool
	timeout time.Duration

	// disasm, when set, receives a listing of each script instead of
	// running it.
	disasm io.Writer
}

// compile returns the bytecode for src, from the cache when possible.
func (rn *runner) compile(filename, src string) (*bytecode.Program, error) {
	key := hash.Script(hash.Input{Filename: filename, Source: src, Strict: rn.strict})
	if rn.cache != nil {
		if p, ok := rn.cache.load(key); ok {
			log.Debugf("%s: code cache hit %s", filename, key)
			return p, nil
		}
	}

	prog, err := parser.ParseFile(nil, filename, src, 0)
	if err != nil {
		return nil, err
	}
	p, err := compiler.Compile(prog, compiler.Options{Filename: filename, Strict: rn.strict})
	if err != nil {
		return nil, err
	}
	if rn.cache != nil {
		if err := rn.cache.store(key, p); err != nil {
			log.Warningf("%s: %v", filename, err)
		}
	}
	return p, nil
}

// runSource compiles and runs src. With a timeout the run is interrupted
// when it expires.
func (rn *runner) runSource(filename, src string) (vm.Value, error) {
	p, err := rn.compile(filename, src)
	if err != nil {
		return vm.Undefined, err
	}
	if rn.disasm != nil {
		fmt.Fprintf(rn.disasm, ";; %s\n%s", filename, p.Main.Disassemble())
		return vm.Undefined, nil
	}

	ctx := context.Background()
	if rn.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, rn.timeout, fmt.Errorf("%s: timed out after %s", filename, rn.timeout))
		defer cancel()
	}
	start := time.Now()
	v, err := rn.realm.RunCompiledContext(ctx, p)
	log.Debugf("%s: ran in %s", filename, time.Since(start))
	return v, err
}

func (rn *runner) runFile(path string) (vm.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return vm.Undefined, err
	}
	return rn.runSource(path, string(src))
}

// report writes err to w in the form a script author expects: the thrown
// value followed by its stack.
func report(w io.Writer, err error) {
	if tv, ok := vm.IsThrown(err); ok {
		fmt.Fprintf(w, "Uncaught %s\n", tv.Message)
		for _, frame := range tv.Stack {
			fmt.Fprintf(w, "    at %s\n", frame)
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
