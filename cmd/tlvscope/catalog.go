package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonylturner/tlvscope/internal/catalog"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/protocols"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Protocol catalog operations",
		Long: `Work with YAML protocol catalogs. A catalog declares TLV protocols:
their header fields, record layout, record types and the table keys they
are bound to.`,
	}

	cmd.AddCommand(newCatalogValidateCmd())

	return cmd
}

func newCatalogValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate protocol catalogs",
		Long: `Load each catalog, check it and register it next to the built-in
dissectors, so that bindings to unknown tables or clashing keys are
reported too.`,
		Example: `  tlvscope catalog validate catalogs/example.yaml`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runCatalogValidate(cmd, args)
		},
	}

	return cmd
}

func runCatalogValidate(cmd *cobra.Command, paths []string) error {
	out := cmd.OutOrStdout()
	for _, path := range paths {
		f, err := catalog.Load(path)
		if err != nil {
			return err
		}
		b := protocols.NewBuilder()
		if err := f.Register(b); err != nil {
			return errors.WrapCatalogError(err, path)
		}
		if _, err := b.Build(); err != nil {
			return errors.WrapCatalogError(err, path)
		}

		records := 0
		for _, p := range f.Protocols {
			if p.TLV != nil {
				records += len(p.TLV.Records)
			}
		}
		fmt.Fprintf(out, "OK  %s (%d protocols, %d records)\n", path, len(f.Protocols), records)
	}
	return nil
}
