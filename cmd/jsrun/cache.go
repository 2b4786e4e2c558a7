package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chazu/jsrt/compiler/hash"
	"github.com/chazu/jsrt/pkg/bytecode"
)

// codeCache stores compiled programs on disk, one CBOR file per content
// key. A corrupt or stale entry is treated as a miss and overwritten.
type codeCache struct {
	dir string

	hits, misses int
}

func newCodeCache(dir string) *codeCache {
	if dir == "" {
		return nil
	}
	return &codeCache{dir: dir}
}

func (c *codeCache) path(key hash.Key) string {
	return filepath.Join(c.dir, key.String()+".jsbc")
}

// load returns the cached program for key, if any.
func (c *codeCache) load(key hash.Key) (*bytecode.Program, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warningf("code cache: %v", err)
		}
		c.misses++
		return nil, false
	}
	p, err := bytecode.Unmarshal(data)
	if err != nil {
		log.Warningf("code cache: discarding %s: %v", c.path(key), err)
		c.misses++
		return nil, false
	}
	c.hits++
	return p, true
}

// store writes p under key. The file is renamed into place so concurrent
// runners never read a partial entry.
func (c *codeCache) store(key hash.Key, p *bytecode.Program) error {
	data, err := bytecode.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("code cache: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("code cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("code cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("code cache: %w", err)
	}
	return os.Rename(tmp.Name(), c.path(key))
}
