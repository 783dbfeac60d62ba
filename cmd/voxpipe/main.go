// Package main is the voxpipe command.
//
// Usage:
//
//	voxpipe [flags] <command> [args]
//
// Commands:
//
//	run      - Run the audio pipeline on the simulated board
//	status   - Show the counters of a running instance
//	control  - Mute, unmute, change the volume or play a tone
//	tone     - List and render the built-in tones
//	config   - Create, show and locate the configuration file
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voxpipe/cmd/voxpipe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
