// Package main is the entrypoint for the cluster-gateway HTTP boundary.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/morezero/cluster-gateway/internal/server"
)

const usage = `Usage: gateway [command]

Commands:
  serve   (default) Start the gateway HTTP boundary.
  help    Show this help.

Environment: LISTEN_INTERFACE, LISTEN_PORT, TLS_CERTFILE, TLS_KEYFILE,
COMMS_URL, STORAGE_SUBJECT, REQUEST_TIMEOUT, GATEWAY_CONFIG_FILE, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}
