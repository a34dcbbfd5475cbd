package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// printOut writes v in the format selected by -o. The text format is the
// caller's job; this handles the structured ones.
func printOut(v any) error {
	switch flagOutput {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", flagOutput)
	}
}

// structured reports whether -o asked for a machine format.
func structured() bool {
	return flagOutput == "json" || flagOutput == "yaml"
}
