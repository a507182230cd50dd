// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"github.com/nasa-itc/sdls"
	"github.com/nasa-itc/sdls/internal/config"
)

// newLibraryFromConfig builds and initializes a Library from a
// decoded Config, the shape every single-shot subcommand needs before
// dispatching its one operation.
func newLibraryFromConfig(cfg *config.Config) (*sdls.Library, error) {
	lib := sdls.NewLibrary()
	if err := lib.Configure(cfg); err != nil {
		return nil, err
	}
	if err := lib.Init(); err != nil {
		return nil, err
	}
	return lib, nil
}
