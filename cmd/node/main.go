// Copyright 2025 Certen Protocol
//
// The bundled node binary: `bootstrap` writes the genesis block, `start`
// runs the batch builder, block builder and RPC server together in one
// process. Subcommand dispatch is a plain switch over os.Args[1] plus a
// per-subcommand flag.FlagSet, using flag.String/flag.Bool directly
// rather than reaching for a CLI framework.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rollupnode/node/internal/config"
	"github.com/rollupnode/node/internal/node"
	"github.com/rollupnode/node/internal/prover"
	"github.com/rollupnode/node/internal/types"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "bootstrap":
		err = runBootstrap(os.Args[2:])
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
		log.Fatalf("node %s: %v", os.Args[1], err)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  node bootstrap --data-directory DIR --accounts-directory DIR")
	fmt.Println("  node start --rpc.url ADDR --data-directory DIR [--batch-prover.url URL] [--block-prover.url URL] [--enable-otel] [--block.interval DUR] [--batch.interval DUR]")
}

func runBootstrap(args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	dataDir := fs.String("data-directory", "./data", "data directory")
	accountsDir := fs.String("accounts-directory", "", "directory containing a genesis.json accounts file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	genesis, err := loadGenesisAccounts(*accountsDir)
	if err != nil {
		return fmt.Errorf("loading genesis accounts: %w", err)
	}

	cfg := config.Default()
	cfg.DataDir = *dataDir
	n, err := node.New(context.Background(), cfg, prover.StubProver{}, prover.StubProver{}, nil)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.Bootstrap(context.Background(), genesis); err != nil {
		return err
	}
	log.Printf("bootstrapped %d genesis accounts at %s", len(genesis), *dataDir)
	return nil
}

// genesisAccountEntry is the on-disk shape of a single account in
// genesis.json: a hex account prefix and a hex-encoded initial state
// digest (Digest's own MarshalJSON/UnmarshalJSON handles the state).
type genesisAccountEntry struct {
	Prefix string       `json:"prefix"`
	State  types.Digest `json:"state"`
}

func loadGenesisAccounts(dir string) (map[uint64]types.Digest, error) {
	if dir == "" {
		return map[uint64]types.Digest{}, nil
	}
	data, err := os.ReadFile(dir + "/genesis.json")
	if err != nil {
		return nil, err
	}
	var entries []genesisAccountEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	out := make(map[uint64]types.Digest, len(entries))
	for _, e := range entries {
		var prefix uint64
		if _, err := fmt.Sscanf(e.Prefix, "0x%x", &prefix); err != nil {
			return nil, fmt.Errorf("invalid account prefix %q: %w", e.Prefix, err)
		}
		out[prefix] = e.State
	}
	return out, nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	rpcURL := fs.String("rpc.url", "0.0.0.0:8080", "rpc listen address")
	dataDir := fs.String("data-directory", "./data", "data directory")
	batchProverURL := fs.String("batch-prover.url", "", "remote batch prover url (recorded only; the stub prover is always used)")
	blockProverURL := fs.String("block-prover.url", "", "remote block prover url (recorded only; the stub prover is always used)")
	enableOTEL := fs.Bool("enable-otel", false, "enable OpenTelemetry hooks")
	blockInterval := fs.Duration("block.interval", 0, "block builder tick interval (config default if unset)")
	batchInterval := fs.Duration("batch.interval", 0, "batch builder tick interval (config default if unset)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	cfg.RPCURL = *rpcURL
	cfg.DataDir = *dataDir
	cfg.BatchProverURL = *batchProverURL
	cfg.BlockProverURL = *blockProverURL
	cfg.EnableOTEL = *enableOTEL
	if *blockInterval > 0 {
		cfg.BlockInterval = *blockInterval
	}
	if *batchInterval > 0 {
		cfg.BatchInterval = *batchInterval
	}

	// Remote prover clients are not wired yet; the stub prover
	// drives the pipeline end to end for bundled/local deployments.
	batchProver, blockProver := prover.BatchProver(prover.StubProver{}), prover.BlockProver(prover.StubProver{})
	if cfg.BatchProverURL != "" || cfg.BlockProverURL != "" {
		log.Printf("remote prover urls configured but not yet wired; using stub prover")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := node.New(ctx, cfg, batchProver, blockProver, nil)
	if err != nil {
		return err
	}
	defer n.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("shutting down...")
		cancel()
	}()

	return n.Run(ctx)
}
