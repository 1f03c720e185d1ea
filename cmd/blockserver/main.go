// Command blockserver runs the central block-distribution server (S):
// it hosts a fixed file catalog, serves blocks to many clients, and
// redirects to trusted peers when its handler pool is saturated.
package main

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/mitchellh/colorstring"

	"blockswarm/catalog"
	"blockswarm/config"
	"blockswarm/server"
)

// --------------------------------------------------------------------------------------------- //

func main() {
	opts, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg := config.ServerFromOptions(opts, ".")

	if cfg.Port == 0 {
		fmt.Fprintln(os.Stderr, "blockserver: --port is required")
		os.Exit(1)
	}

	cat, err := catalog.Scan(cfg.FilesDir, cfg.B)
	if cat == nil {
		log.Fatalf("[ERROR]\tblockserver: scanning %s: %v\n", cfg.FilesDir, err)
	}

	if err != nil {
		log.Printf("[FAIL]\tblockserver: some files in %s could not be indexed: %v\n", cfg.FilesDir, err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Fatalf("[ERROR]\tblockserver: binding port %d: %v\n", cfg.Port, err)
	}

	colorstring.Printf("[bold]blockswarm server[reset] listening on [cyan]:%d[reset] (Cs=%d, P=%.2f, T=%ds)\n",
		cfg.Port, cfg.Cs, cfg.P, cfg.T)

	srv := server.New(cat, cfg.Cs, cfg.P, cfg.T)

	if err := srv.Serve(ln); err != nil {
		log.Fatalf("[ERROR]\tblockserver: %v\n", err)
	}
}

// --------------------------------------------------------------------------------------------- //
