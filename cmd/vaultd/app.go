package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/defistate/defistate-vault-go/cmd/vaultd/config"
	"github.com/defistate/defistate-vault-go/differ"
	"github.com/defistate/defistate-vault-go/events"
	"github.com/defistate/defistate-vault-go/ledger"
	"github.com/defistate/defistate-vault-go/liquidator"
	"github.com/defistate/defistate-vault-go/oracle"
	"github.com/defistate/defistate-vault-go/protocols/shareregistry"
	"github.com/defistate/defistate-vault-go/storage"
	"github.com/defistate/defistate-vault-go/streams/jsonrpc/server"
	"github.com/defistate/defistate-vault-go/vault"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app is a fully wired vault node.
type app struct {
	rpcServer *rpc.Server
	journal   *storage.EventStore
	bus       *events.Bus
	vault     *vault.Vault
	registry  *shareregistry.System
	closers   []func()
}

// newApp builds every component from cfg. The journal decides where the event
// sequence resumes and which registry entries already exist; balances always
// start from the genesis allocations.
func newApp(ctx context.Context, cfg *config.VaultConfig, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	accounts, err := cfg.Accounts()
	if err != nil {
		return nil, err
	}
	bonus, err := cfg.Bonus()
	if err != nil {
		return nil, err
	}
	finders, err := cfg.FinderAddresses()
	if err != nil {
		return nil, err
	}
	allocs, err := cfg.Allocations()
	if err != nil {
		return nil, err
	}

	// --- persistence ---
	a.journal, err = storage.NewEventStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.journal.Close() })

	lastSeq, err := a.journal.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal head: %w", err)
	}
	entries, err := a.journal.LoadRegistrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registrations: %w", err)
	}
	a.registry, err = shareregistry.NewSystemFromEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to restore registry: %w", err)
	}

	store, err := ledger.NewMemoryStoreWithAllocations(allocs)
	if err != nil {
		return nil, fmt.Errorf("failed to seed ledger: %w", err)
	}

	// --- events ---
	a.bus = events.NewBus(lastSeq)
	a.bus.Subscribe(a.journal.Handler(ctx, logger.With("component", "journal")))
	a.bus.Subscribe(events.LogHandler(logger.With("component", "events")))
	a.registry.OnRegister(func(e shareregistry.Entry) {
		a.bus.Emit(events.Registered{Asset: e.Asset, ShareAsset: e.ShareAsset})
	})

	// --- price oracle ---
	var prices oracle.PriceOracle
	var static *oracle.StaticOracle
	if cfg.Oracle.URL != "" {
		remote, err := oracle.DialRPCOracle(ctx, cfg.Oracle.URL, cfg.Oracle.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to dial price oracle: %w", err)
		}
		a.closers = append(a.closers, remote.Close)
		prices = remote
	} else {
		table, err := cfg.Oracle.StaticPrices()
		if err != nil {
			return nil, err
		}
		static = oracle.NewStaticOracle(table)
		prices = static
	}

	// --- engine ---
	a.vault, err = vault.New(&vault.Config{
		Store:      store,
		Registry:   a.registry,
		Accounts:   accounts,
		Emitter:    a.bus,
		Logger:     logger.With("component", "vault"),
		Registerer: reg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vault: %w", err)
	}

	strategy, err := liquidator.NewSeizeStrategy(&liquidator.SeizeStrategyConfig{
		Oracle:   prices,
		Accounts: accounts,
		Bonus:    bonus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}
	coordinator, err := liquidator.NewCoordinator(&liquidator.Config{
		Oracle:     prices,
		Vault:      a.vault,
		Store:      store,
		Strategy:   strategy,
		Finders:    finders,
		Emitter:    a.bus,
		Logger:     logger.With("component", "liquidator"),
		Registerer: reg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	// --- state stream ---
	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: reg,
		Logger:   logger.With("component", "differ"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create differ: %w", err)
	}
	broadcaster, err := server.NewBroadcaster(&server.BroadcasterConfig{
		Source:        a.vault,
		Differ:        stateDiffer,
		StartSequence: lastSeq,
		BufferSize:    cfg.StreamBufferSize,
		Logger:        logger.With("component", "broadcaster"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcaster: %w", err)
	}
	a.bus.Subscribe(broadcaster.Handle)

	// --- configured registrations ---
	for _, e := range cfg.Entries() {
		added, err := a.registry.Register(e.Asset, e.ShareAsset)
		if err != nil {
			return nil, fmt.Errorf("failed to register asset %d: %w", e.Asset, err)
		}
		if added {
			logger.Info("Registered asset from config", "asset", e.Asset, "share_asset", e.ShareAsset)
		}
	}

	// --- rpc ---
	api, err := server.NewAPI(&server.Config{
		Vault:       a.vault,
		Registry:    a.registry,
		Liquidator:  coordinator,
		Broadcaster: broadcaster,
		Logger:      logger.With("component", "rpc"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api: %w", err)
	}
	a.rpcServer, err = server.NewRPCServer(api)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.rpcServer.Stop)

	if cfg.Oracle.Serve && static != nil {
		if err := a.rpcServer.RegisterName(oracle.RpcNamespace, oracle.NewAPI(static)); err != nil {
			return nil, err
		}
	}

	logger.Info("Vault node ready",
		"vault_account", accounts.Vault(),
		"liquidator_account", accounts.Liquidator(),
		"resumed_at_seq", lastSeq,
		"registered_assets", a.registry.Len(),
		"finders", len(finders),
	)
	ready = true
	return a, nil
}

// handler serves JSON-RPC over HTTP and WebSocket on "/" and metrics on "/metrics".
func (a *app) handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/", server.NewHTTPHandler(a.rpcServer, []string{"*"}))
	return mux
}

// serve runs the HTTP server until ctx is canceled.
func (a *app) serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	httpServer := &http.Server{Addr: addr, Handler: a.handler(gatherer)}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving JSON-RPC", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close releases every resource in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

