// Package main provides the SmartNPC CLI tool.
//
// Usage:
//
//	smartnpc [flags] <command> [args]
//
// Commands:
//
//	config     - Configuration management
//	character  - Character information
//	chat       - Talk to a character
//	history    - Message history
//	speech     - Speech recognition
//
// Configuration:
//
//	The CLI stores configuration in ~/.smartnpc/smartnpc/
//	Use 'smartnpc config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/smartnpc/smartnpc-go/cmd/smartnpc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
