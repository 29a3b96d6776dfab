// Package source loads schema definitions from files, picking the decoder by extension.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/satishbabariya/tdal/schema"
	"github.com/satishbabariya/tdal/schema/dsl"
)

// Extensions recognised by Load.
var Extensions = []string{".tdal", ".prisma", ".yaml", ".yml", ".json"}

// Option configures Load.
type Option func(*options)

type options struct {
	lookup func(string) (string, bool)
}

// WithLookup resolves env("NAME") calls with fn instead of the process environment.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = fn }
}

// Load reads the schema at path from fs.
func Load(fs afero.Fs, path string, opts ...Option) (*schema.Definition, error) {
	o := &options{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(o)
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tdal", ".prisma":
		return dsl.Load(path, f, o.lookup)
	case ".yaml", ".yml", ".json":
		return schema.DecodeYAML(f)
	}
	return nil, fmt.Errorf("schema %s: unsupported extension (want one of %s)", path, strings.Join(Extensions, ", "))
}

// Registry loads the schema at path and validates it.
func Registry(fs afero.Fs, path string, opts ...Option) (*schema.Registry, error) {
	def, err := Load(fs, path, opts...)
	if err != nil {
		return nil, err
	}
	return schema.NewRegistry(def)
}

// Find returns the first schema file under dir, trying schema.<ext> for every known extension.
func Find(fs afero.Fs, dir string) (string, bool) {
	for _, ext := range Extensions {
		p := filepath.Join(dir, "schema"+ext)
		if ok, _ := afero.Exists(fs, p); ok {
			return p, true
		}
	}
	return "", false
}
