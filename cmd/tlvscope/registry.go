package main

import (
	"github.com/spf13/cobra"

	"github.com/tonylturner/tlvscope/internal/catalog"
	"github.com/tonylturner/tlvscope/internal/config"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/protocols"
)

// registryFlags are shared by every command that dissects.
type registryFlags struct {
	configPath string
	catalogs   []string
}

func (f *registryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "Config file (default "+config.DefaultPath+" if present)")
	cmd.Flags().StringArrayVar(&f.catalogs, "catalog", nil, "Protocol catalog YAML file (repeatable)")
}

// load reads the configuration and builds the registry from the built-in
// dissectors, the configured and flagged catalogs, and the bindings.
func (f *registryFlags) load() (*config.Config, *dissector.Registry, error) {
	cfg, err := config.Load(f.configPath, f.configPath != "")
	if err != nil {
		return nil, nil, err
	}

	paths := append(append([]string(nil), cfg.Catalogs...), f.catalogs...)
	files, err := catalog.LoadAll(paths)
	if err != nil {
		return nil, nil, err
	}

	b := protocols.NewBuilder()
	for _, file := range files {
		if err := file.Register(b); err != nil {
			return nil, nil, errors.WrapCatalogError(err, file.Path)
		}
	}
	cfg.ApplyBindings(b)

	reg, err := b.Build()
	if err != nil {
		return nil, nil, errors.WrapRegistryError(err)
	}
	return cfg, reg, nil
}
