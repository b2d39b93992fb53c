package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/gocommerce/internal/account"
	"github.com/dshills/gocommerce/internal/api"
	"github.com/dshills/gocommerce/internal/attrstore"
	"github.com/dshills/gocommerce/internal/cart"
	"github.com/dshills/gocommerce/internal/catalog"
	"github.com/dshills/gocommerce/internal/config"
	"github.com/dshills/gocommerce/internal/mcp"
	"github.com/dshills/gocommerce/internal/notify"
	"github.com/dshills/gocommerce/internal/order"
	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `usage: gocommerce [http|mcp|migrate up|migrate down|migrate version] [--version]`

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("gocommerce\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	// Log to stderr (stdout reserved for MCP protocol)
	log.SetOutput(os.Stderr)

	mode := "http"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "http":
		err = runHTTP(ctx, cfg)
	case "mcp":
		err = runMCP(ctx, cfg)
	case "migrate":
		action := "up"
		if len(os.Args) > 2 {
			action = os.Args[2]
		}
		err = runMigrate(ctx, cfg, action)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", mode, err)
	}
	log.Println("Stopped")
}

// app holds the wired services shared by the http and mcp modes
type app struct {
	store      *storage.SQLiteStorage
	catalog    *catalog.Service
	carts      *cart.Service
	orders     *order.Service
	dispatcher *notify.Dispatcher
}

func openStore(cfg *config.Config) (*storage.SQLiteStorage, error) {
	policy := attrstore.Strict
	if cfg.Attributes.Lenient {
		policy = attrstore.Lenient
	}
	store, err := storage.NewSQLiteStorageWithOptions(cfg.Database.Path, storage.Options{AttributePolicy: policy})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Printf("Database %s (driver %s, build %s)", cfg.Database.Path, storage.DriverName, storage.BuildMode)
	return store, nil
}

func newSender(ctx context.Context, cfg *config.Config) (notify.Sender, error) {
	if cfg.Notify.Sender == config.SenderSQS {
		return notify.NewSQSSenderFromEnv(ctx, cfg.Notify.SQSQueueURL, cfg.Notify.AWSRegion)
	}
	return notify.NewLogSender(nil), nil
}

// wire builds the services over an open store. users resolves order owners
// and notification recipients.
func wire(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, users order.UserLookup) (*app, error) {
	sender, err := newSender(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification sender: %w", err)
	}

	products := catalog.New(store, &catalog.Config{
		CacheSize: cfg.Catalog.CacheSize,
		CacheTTL:  cfg.Catalog.CacheTTL,
	})
	carts := cart.New(store, products)
	dispatcher := notify.NewDispatcher(store, users, sender, &notify.DispatcherConfig{
		Workers:      cfg.Notify.Workers,
		SendTimeout:  cfg.Notify.Timeout,
		PollInterval: cfg.Notify.PollInterval,
	})
	orders := order.New(store, carts, users, dispatcher, &order.Config{NotifyTimeout: cfg.Notify.Timeout})

	return &app{store: store, catalog: products, carts: carts, orders: orders, dispatcher: dispatcher}, nil
}

func runHTTP(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateHTTP(); err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	accounts, err := account.New(store, account.Config{
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.Auth.TokenTTL,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
	})
	if err != nil {
		return err
	}
	a, err := wire(ctx, cfg, store, accounts)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Services{
		Storage:  store,
		Accounts: accounts,
		Catalog:  a.catalog,
		Carts:    a.carts,
		Orders:   a.orders,
	}, api.Config{
		Addr:            cfg.HTTP.Addr,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	return g.Wait()
}

func runMCP(ctx context.Context, cfg *config.Config) error {
	log.Printf("gocommerce MCP server v%s starting...", version)
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	a, err := wire(ctx, cfg, store, storeUsers{store})
	if err != nil {
		return err
	}
	server := mcp.NewServer(mcp.Services{
		Storage: store,
		Catalog: a.catalog,
		Carts:   a.carts,
		Orders:  a.orders,
	})

	// The dispatcher stops when the client closes stdin
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		log.Println("MCP server ready, listening on stdio...")
		err := server.Serve(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	return g.Wait()
}

func runMigrate(ctx context.Context, cfg *config.Config, action string) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	switch action {
	case "up":
		// NewSQLiteStorage already applied pending migrations
	case "down":
		if err := storage.RollbackMigration(ctx, store.DB()); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q\n%s", action, usage)
	}

	v, err := storage.SchemaVersion(ctx, store.DB())
	if err != nil {
		return err
	}
	log.Printf("Schema version: %s", v)
	return nil
}

// storeUsers resolves users straight from storage when no account service
// is configured
type storeUsers struct {
	store storage.Storage
}

func (u storeUsers) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	user, err := u.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrUserNotFound
	}
	return user, err
}
