// Package cli provides the terminal helpers of the voxpipe command: output
// formatting (YAML, JSON, table), human readable units and logger setup.
//
// Example usage:
//
//	log, err := cli.NewLogger(os.Stderr, "debug")
//
//	cli.Output(os.Stdout, stats, cli.FormatJSON)
package cli
