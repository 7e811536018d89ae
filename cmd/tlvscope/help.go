package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if strings.EqualFold(args[0], "help") {
		_ = cmd.Help()
		return true
	}
	return false
}

func missingFlagError(cmd *cobra.Command, flag string) error {
	_ = cmd.Help()
	return fmt.Errorf("required flag %s not set", flag)
}

var hexSeparators = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "", "0x", "")

// parseHexArgs joins the arguments into one buffer. Spaces, colons and 0x
// prefixes are ignored, so "81 0b:00 0c" and "0x810b000c" are the same.
func parseHexArgs(args []string) ([]byte, error) {
	s := hexSeparators.Replace(strings.Join(args, ""))
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return data, nil
}
