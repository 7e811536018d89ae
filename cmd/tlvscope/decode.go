package main

import (
	"github.com/spf13/cobra"

	"github.com/tonylturner/tlvscope/internal/engine"
	"github.com/tonylturner/tlvscope/internal/report"
)

type decodeFlags struct {
	registryFlags
	table    string
	key      string
	protocol string
	format   string
	hex      bool
}

func newDecodeCmd() *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Dissect a raw hex payload",
		Long: `Dissect a payload given as hex, either through the protocol bound to a
table key or by calling a protocol by name. The payload may be split over
several arguments and may contain spaces, colons and 0x prefixes.`,
		Example: `  # BACnet/IP Who-Is through the UDP port table
  tlvscope decode --table udp.port --key 47808 810b000c0120ffff00ff1008

  # Modbus/TCP by protocol name
  tlvscope decode --protocol mbtcp 00 01 00 00 00 06 01 03 00 00 00 0a`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.protocol == "" && (flags.table == "" || flags.key == "") {
				return missingFlagError(cmd, "--protocol or --table/--key")
			}
			return runDecode(cmd, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.table, "table", "", "Dissector table, e.g. udp.port or media.type")
	cmd.Flags().StringVar(&flags.key, "key", "", "Key in --table")
	cmd.Flags().StringVar(&flags.protocol, "protocol", "", "Protocol name, instead of --table/--key")
	cmd.Flags().StringVar(&flags.format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&flags.hex, "hex", false, "Include a hexdump of the payload")
	flags.registryFlags.bind(cmd)

	return cmd
}

func runDecode(cmd *cobra.Command, flags *decodeFlags, args []string) error {
	data, err := parseHexArgs(args)
	if err != nil {
		return err
	}
	cfg, reg, err := flags.load()
	if err != nil {
		return err
	}

	eng := engine.New(reg, engine.Options{Limits: cfg.Limits()})
	res, err := eng.Decode(engine.Target{Protocol: flags.protocol, Table: flags.table, Key: flags.key}, data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flags.format == "json" {
		return report.WriteFrameJSON(out, report.NewFrameReport(res, flags.hex))
	}
	return report.NewTextRenderer(out, report.TextOptions{Color: cfg.Output.Color, Hex: flags.hex}).Frame(res)
}
