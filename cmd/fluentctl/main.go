// Command fluentctl exercises the Fluent voice coach from a terminal.
//
// Usage:
//
//	fluentctl [flags] <command> [args]
//
// Commands:
//
//	voices      - List the voice catalog
//	synthesize  - Speak text with the configured text-to-speech backend
//	turn        - Run one conversation turn in-process from an audio file
//	converse    - Run one conversation turn against a running server
//
// Configuration is read the same way as the server: .env, FLUENT_CONFIG and
// the process environment.
package main

import (
	"fmt"
	"os"

	"github.com/satriahrh/fluent/cmd/fluentctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
