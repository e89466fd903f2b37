// Package plugins holds the factory registries for pluggable service parts.
package plugins

import (
	"fmt"

	"github.com/kilianp07/autoaid/core/factory"
	"github.com/kilianp07/autoaid/core/registry"
)

// Directories builds mechanic identity directories by type.
var Directories = factory.NewRegistry[registry.Directory]()

// RegisterDirectory adds a directory factory. It panics on duplicates since
// registration happens from init functions.
func RegisterDirectory(name string, f factory.Factory[registry.Directory]) {
	if err := Directories.Register(name, f); err != nil {
		panic(err)
	}
}

// NewDirectory instantiates the configured directory.
func NewDirectory(cfg factory.ModuleConfig) (registry.Directory, error) {
	dir, err := Directories.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("registry directory: %w", err)
	}
	return dir, nil
}
