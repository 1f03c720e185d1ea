// Command blockclient downloads one file from a blockswarm server (C)
// using Dc parallel workers, then starts its own trusted-peer server
// (T) so later clients can redirect to it.
package main

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/mitchellh/colorstring"

	"blockswarm/client"
	"blockswarm/config"
)

// --------------------------------------------------------------------------------------------- //

func main() {
	opts, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg := config.ClientFromOptions(opts, ".")

	if cfg.Port == 0 {
		fmt.Fprintln(os.Stderr, "blockclient: --port is required (own trusted-peer listen port)")
		os.Exit(1)
	}

	c := &client.Client{
		ServerHost: cfg.ServerHost,
		ServerPort: cfg.ServerPort,
		Dc:         cfg.Dc,
		B:          cfg.B,
		Pc:         cfg.Pc,
		Host:       cfg.Host,
		Port:       cfg.Port,
		FilesDir:   cfg.FilesDir,
	}

	peer, err := c.Run(cfg.File)
	if err != nil {
		log.Fatalf("[ERROR]\tblockclient: %v\n", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Fatalf("[ERROR]\tblockclient: binding trusted-peer port %d: %v\n", cfg.Port, err)
	}

	colorstring.Printf("[bold]blockswarm client[reset]: trusted-peer server listening on [cyan]:%d[reset]\n", cfg.Port)

	if err := peer.Serve(ln); err != nil {
		log.Fatalf("[ERROR]\tblockclient: trusted-peer server: %v\n", err)
	}
}

// --------------------------------------------------------------------------------------------- //
