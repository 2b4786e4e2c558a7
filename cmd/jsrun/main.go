// jsrun - command-line runner for jsrt scripts
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/jsrt/manifest"
	"github.com/chazu/jsrt/vm"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("jsrt.jsrun")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("jsrun", flag.ContinueOnError)
	verbose := fs.Int("v", 0, "Log verbosity (0 = notices, 1 = info, 2 = debug)")
	configPath := fs.String("config", "", "Path to jsrt.toml (default: search upward from the current directory)")
	disasm := fs.Bool("disasm", false, "Print bytecode instead of running")
	cacheDir := fs.String("cache", "", "Directory for compiled bytecode (overrides engine.cache-dir)")
	noCache := fs.Bool("no-cache", false, "Disable the bytecode cache")
	strict := fs.Bool("strict", false, "Compile every script as strict mode code")
	printResult := fs.Bool("p", false, "Print the completion value of the last script")
	heapStats := fs.Bool("heap-stats", false, "Print heap statistics on exit")
	timeout := fs.Duration("timeout", 0, "Abort a script after this long (overrides engine.timeout)")
	expr := fs.String("e", "", "Evaluate a script given on the command line")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: jsrun [options] [scripts...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs ECMAScript 5 scripts in one realm, in order. With no scripts,\n")
		fmt.Fprintf(os.Stderr, "runs the preload and entry scripts named in jsrt.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  jsrun app.js                  # Run a script\n")
		fmt.Fprintf(os.Stderr, "  jsrun -p -e '1 + 2'           # Evaluate and print\n")
		fmt.Fprintf(os.Stderr, "  jsrun -disasm lib.js          # Show compiled bytecode\n")
		fmt.Fprintf(os.Stderr, "  jsrun -config ./jsrt.toml     # Use an explicit manifest\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	m, err := loadManifest(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	verbosity := max(*verbose, m.Log.Verbosity)
	var logPath *string
	if m.Log.Path != "" {
		p := m.Resolve(m.Log.Path)
		logPath = &p
	}
	commonlog.Configure(verbosity, logPath)

	cfg := m.EngineConfig()
	rn := &runner{strict: *strict, timeout: cfg.Timeout.Duration}
	if *timeout > 0 {
		rn.timeout = *timeout
	}
	if !*noCache {
		dir := m.Resolve(cfg.CacheDir)
		if *cacheDir != "" {
			dir = *cacheDir
		}
		rn.cache = newCodeCache(dir)
	}
	if *disasm {
		rn.disasm = os.Stdout
	}

	scripts := fs.Args()
	if len(scripts) == 0 && *expr == "" {
		scripts = m.PreloadPaths()
		if m.Source.Entry != "" {
			scripts = append(scripts, m.Resolve(m.Source.Entry))
		}
	}
	if len(scripts) == 0 && *expr == "" {
		fs.Usage()
		return 2
	}

	realm := vm.NewRealm(cfg)
	rn.realm = realm
	defer realm.Close()

	result := vm.Undefined
	for _, path := range scripts {
		log.Infof("running %s", path)
		result, err = rn.runFile(path)
		if err != nil {
			report(os.Stderr, err)
			return 1
		}
	}
	if *expr != "" {
		result, err = rn.runSource("<command line>", *expr)
		if err != nil {
			report(os.Stderr, err)
			return 1
		}
	}

	if *printResult && rn.disasm == nil {
		fmt.Println(realm.Inspect(result))
	}
	if rn.cache != nil {
		log.Infof("code cache: %d hits, %d misses", rn.cache.hits, rn.cache.misses)
	}
	if *heapStats {
		printHeapStats(realm.HeapStats())
	}
	return 0
}

// loadManifest reads an explicit manifest, or the nearest jsrt.toml above
// the working directory, or falls back to defaults.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
		m.Dir = wd
	} else {
		log.Infof("using %s", filepath.Join(m.Dir, manifest.FileName))
	}
	return m, nil
}

func printHeapStats(s vm.HeapStats) {
	fmt.Fprintf(os.Stderr, "heap: %d live cells (%d bytes), arena %d, %d free\n",
		s.LiveCells, s.LiveBytes, s.ArenaSize, s.FreeCells)
	fmt.Fprintf(os.Stderr, "gc:   %d collections, %d cells freed (%d last), %d/%d bytes toward next\n",
		s.Collections, s.TotalFreed, s.LastFreed, s.BytesSinceGC, s.ThresholdBytes)
}
