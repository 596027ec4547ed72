// Copyright 2025 Certen Protocol
//
// The store binary runs the durable account/nullifier/note/block state
// behind the store RPC surface only, with no batch or block builder
// loop of its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rollupnode/node/internal/rpc"
	"github.com/rollupnode/node/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("store %s: %v", os.Args[1], err)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  store start --rpc.url ADDR --data-directory DIR")
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	rpcURL := fs.String("rpc.url", "0.0.0.0:8080", "rpc listen address")
	dataDir := fs.String("data-directory", "./data", "data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, *dataDir, log.New(log.Writer(), "[store] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer st.Close()

	mux := http.NewServeMux()
	rpc.RegisterStoreRoutes(mux, rpc.NewStoreHandlers(st, log.New(log.Writer(), "[store-rpc] ", log.LstdFlags)))
	handler := rpc.WithRequestID(mux, log.New(log.Writer(), "[rpc] ", log.LstdFlags))
	server := &http.Server{Addr: *rpcURL, Handler: handler}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-quit:
		log.Println("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
