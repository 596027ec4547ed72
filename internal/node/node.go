// Copyright 2025 Certen Protocol
//
// Package node wires the bundled node's cooperative task set: batch
// building, block building and RPC serving each run as one errgroup
// goroutine, ticking on their own configured interval. A failed block
// is fatal: the errgroup's shared context is cancelled and the group
// returns the error that caused it, a "first fatal error wins" use of
// errgroup.
package node

import (
	"context"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rollupnode/node/internal/batchbuilder"
	"github.com/rollupnode/node/internal/blockbuilder"
	"github.com/rollupnode/node/internal/config"
	"github.com/rollupnode/node/internal/mempool"
	"github.com/rollupnode/node/internal/prover"
	"github.com/rollupnode/node/internal/rpc"
	"github.com/rollupnode/node/internal/store"
	"github.com/rollupnode/node/internal/types"
)

// Node owns one bundled deployment: a store, a mempool, the batch/block
// builder loops, and the RPC server exposing both to the outside world.
type Node struct {
	cfg   config.Config
	log   *log.Logger
	store *store.Store
	mp    *mempool.Mempool

	batchBuilder *batchbuilder.Builder
	blockBuilder *blockbuilder.Builder

	httpServer *http.Server
}

// New opens the store at cfg.DataDir and wires the mempool and builder
// loops against it. Callers that want a remote prover instead of the
// in-process stub should construct batchProver/blockProver themselves
// and pass them here; the bundled default is prover.StubProver{}.
func New(ctx context.Context, cfg config.Config, batchProver prover.BatchProver, blockProver prover.BlockProver, logger *log.Logger) (*Node, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[node] ", log.LstdFlags)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DataDir, log.New(log.Writer(), "[store] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}

	mp := mempool.New(mempool.DefaultConfig(), st)

	bb := batchbuilder.New(mp, batchProver, log.New(log.Writer(), "[batchbuilder] ", log.LstdFlags))
	blb := blockbuilder.New(mp, st, blockProver, log.New(log.Writer(), "[blockbuilder] ", log.LstdFlags))

	rpcLog := log.New(log.Writer(), "[rpc] ", log.LstdFlags)
	mux := http.NewServeMux()
	rpc.RegisterStoreRoutes(mux, rpc.NewStoreHandlers(st, log.New(log.Writer(), "[store-rpc] ", log.LstdFlags)))
	rpc.RegisterBlockProducerRoutes(mux, rpc.NewBlockProducerHandlers(mp, log.New(log.Writer(), "[block-producer-rpc] ", log.LstdFlags)))

	return &Node{
		cfg:          cfg,
		log:          logger,
		store:        st,
		mp:           mp,
		batchBuilder: bb,
		blockBuilder: blb,
		httpServer:   &http.Server{Addr: cfg.RPCURL, Handler: rpc.WithRequestID(mux, rpcLog)},
	}, nil
}

// Bootstrap writes the genesis block directly to the store, bypassing
// the batch/block pipeline.
func (n *Node) Bootstrap(ctx context.Context, genesisAccounts map[uint64]types.Digest) error {
	return n.store.Bootstrap(ctx, genesisAccounts)
}

// Close releases the store's resources. Safe to call after Run returns.
func (n *Node) Close() error {
	return n.store.Close()
}

// Run drives the node's cooperative task set until ctx is cancelled or
// a fatal error occurs in any task, per  Scheduling. It
// returns the first such error (nil on clean shutdown via ctx).
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A failed batch is not fatal: Tick has already
		// reported the failure to the mempool via BatchFailed before
		// returning it here, so this loop only logs and continues.
		return n.tickLoop(ctx, n.cfg.BatchInterval, func(ctx context.Context) error {
			if _, err := n.batchBuilder.Tick(ctx); err != nil {
				n.log.Printf("batch tick: %v", err)
			}
			return nil
		})
	})

	g.Go(func() error {
		// A failed block is fatal:
		// propagate the error so the errgroup cancels every other task.
		return n.tickLoop(ctx, n.cfg.BlockInterval, func(ctx context.Context) error {
			_, err := n.blockBuilder.Tick(ctx)
			return err
		})
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- n.httpServer.ListenAndServe() }()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return n.httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})

	return g.Wait()
}

// tickLoop runs fn every interval until ctx is cancelled. A non-nil
// error from fn stops the loop and propagates, matching "a failed block
// is fatal" for the block-builder loop and "a failed batch is not" for
// the batch-builder loop (batchbuilder.Tick returns a batch failure
// after reporting it to the mempool; the batch loop's fn logs that error
// and returns nil).
func (n *Node) tickLoop(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
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
