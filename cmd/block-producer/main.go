// Copyright 2025 Certen Protocol
//
// The block-producer binary runs the mempool plus the batch/block
// builder loops against a store reached over HTTP, and exposes the
// block-producer RPC surface (submit_proven_transaction) to clients
//.
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

	"golang.org/x/sync/errgroup"

	"github.com/rollupnode/node/internal/batchbuilder"
	"github.com/rollupnode/node/internal/blockbuilder"
	"github.com/rollupnode/node/internal/mempool"
	"github.com/rollupnode/node/internal/prover"
	"github.com/rollupnode/node/internal/rpc"
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
		log.Fatalf("block-producer %s: %v", os.Args[1], err)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  block-producer start --rpc.url ADDR --store.url URL [--batch-prover.url URL] [--block-prover.url URL] [--block.interval DUR] [--batch.interval DUR]")
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	rpcURL := fs.String("rpc.url", "0.0.0.0:8081", "rpc listen address")
	storeURL := fs.String("store.url", "http://127.0.0.1:8080", "store rpc base url")
	batchProverURL := fs.String("batch-prover.url", "", "remote batch prover url (stub prover if unset)")
	blockProverURL := fs.String("block-prover.url", "", "remote block prover url (stub prover if unset)")
	blockInterval := fs.Duration("block.interval", 10*time.Second, "block builder tick interval")
	batchInterval := fs.Duration("batch.interval", 2*time.Second, "batch builder tick interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Remote prover clients are not wired yet; the stub prover drives
	// the pipeline end to end.
	batchProver, blockProver := prover.BatchProver(prover.StubProver{}), prover.BlockProver(prover.StubProver{})
	if *batchProverURL != "" || *blockProverURL != "" {
		log.Printf("remote prover urls configured but not yet wired; using stub prover")
	}

	storeClient := rpc.NewStoreClient(*storeURL)

	mp := mempool.New(mempool.DefaultConfig(), storeClient)
	bb := batchbuilder.New(mp, batchProver, log.New(log.Writer(), "[batchbuilder] ", log.LstdFlags))
	blb := blockbuilder.New(mp, storeClient, blockProver, log.New(log.Writer(), "[blockbuilder] ", log.LstdFlags))

	mux := http.NewServeMux()
	rpc.RegisterBlockProducerRoutes(mux, rpc.NewBlockProducerHandlers(mp, log.New(log.Writer(), "[block-producer-rpc] ", log.LstdFlags)))
	handler := rpc.WithRequestID(mux, log.New(log.Writer(), "[rpc] ", log.LstdFlags))
	server := &http.Server{Addr: *rpcURL, Handler: handler}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("shutting down...")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A failed batch is not fatal; Tick has already
		// reported the failure to the mempool via BatchFailed.
		return tickLoop(ctx, *batchInterval, func(ctx context.Context) error {
			if _, err := bb.Tick(ctx); err != nil {
				log.Printf("batch tick: %v", err)
			}
			return nil
		})
	})

	g.Go(func() error {
		// A failed block is fatal.
		return tickLoop(ctx, *blockInterval, func(ctx context.Context) error {
			_, err := blb.Tick(ctx)
			return err
		})
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})

	return g.Wait()
}

func tickLoop(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				return err
			}
		}
	}
}
