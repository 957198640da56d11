// Command larder is the voice-controlled fridge inventory assistant.
//
// Usage:
//
//	larder [--config larder.yaml] <command>
//
// Commands:
//
//	run        - Start the voice pipeline, UI hub and background workers
//	inventory  - List, add, remove or clear items offline
//	config     - Validate a configuration file
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/MrWong99/larder/cmd/larder/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "larder: %v\n", err)
		os.Exit(1)
	}
}
