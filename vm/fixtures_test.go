package vm

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// fixtureFile is one YAML file under testdata/fixtures. Every case runs in
// a fresh realm.
type fixtureFile struct {
	Description string        `yaml:"description"`
	Cases       []fixtureCase `yaml:"cases"`
}

type fixtureCase struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	// Expect is the completion value as print renders it.
	Expect *string `yaml:"expect"`
	// Throws is a prefix of the uncaught exception's message.
	Throws string   `yaml:"throws"`
	Stdout []string `yaml:"stdout"`
	// MaxCallDepth overrides the engine default when set.
	MaxCallDepth int `yaml:"max_call_depth"`
}

func TestFixtures(t *testing.T) {
	root := filepath.Join("testdata", "fixtures")
	files := walkFixtureFiles(t, root)
	require.NotEmpty(t, files, "no fixtures under %s", root)

	for _, path := range files {
		rel, _ := filepath.Rel(root, path)
		t.Run(strings.TrimSuffix(rel, ".yaml"), func(t *testing.T) {
			ff := readFixtureFile(t, path)
			for _, fc := range ff.Cases {
				t.Run(fc.Name, func(t *testing.T) {
					runFixtureCase(t, fc)
				})
			}
		})
	}
}

func walkFixtureFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && filepath.Ext(path) == ".yaml" {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err, "walking fixtures")
	return files
}

func readFixtureFile(t *testing.T, path string) fixtureFile {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ff fixtureFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	require.NoError(t, dec.Decode(&ff), "parse fixture %s", path)
	for i, fc := range ff.Cases {
		require.NotEmpty(t, fc.Name, "%s: case %d has no name", path, i)
		require.True(t, fc.Expect != nil || fc.Throws != "" || fc.Stdout != nil,
			"%s: case %q checks nothing", path, fc.Name)
	}
	return ff
}

func runFixtureCase(t *testing.T, fc fixtureCase) {
	var r *Realm
	if fc.MaxCallDepth > 0 {
		r = newDepthRealm(t, fc.MaxCallDepth)
	} else {
		r = newTestRealm(t)
	}
	var out bytes.Buffer
	r.SetOutput(&out)

	v, err := r.RunScript(fc.Name+".js", fc.Source)
	if fc.Throws != "" {
		tv, ok := IsThrown(err)
		require.True(t, ok, "expected a throw, got value %s and error %v", r.Inspect(v), err)
		assert.True(t, strings.HasPrefix(tv.Message, fc.Throws),
			"thrown %q, want prefix %q", tv.Message, fc.Throws)
	} else {
		require.NoError(t, err)
	}
	if fc.Expect != nil {
		assert.Equal(t, *fc.Expect, r.ToDisplayString(v))
	}
	if fc.Stdout != nil {
		lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
		if out.Len() == 0 {
			lines = []string{}
		}
		assert.Equal(t, fc.Stdout, lines)
	}
}
