package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/gocommerce/internal/storage"
	"github.com/dshills/gocommerce/pkg/types"
)

// UserLookup resolves the recipient of a notification
type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (*types.User, error)
}

// DispatcherConfig contains configuration for the dispatcher
type DispatcherConfig struct {
	BatchSize    int           // Pending rows read per pass (default: 50)
	Workers      int           // Concurrent sends per pass (default: 4)
	SendTimeout  time.Duration // Per-message timeout (default: 5s)
	PollInterval time.Duration // Delay between passes in Run (default: 10s)
	ClaimTimeout time.Duration // Age after which a sending row is reclaimed (default: 2x SendTimeout)
}

// Dispatcher drains the notification outbox
type Dispatcher struct {
	storage storage.Storage
	users   UserLookup
	sender  Sender
	config  DispatcherConfig
}

// NewDispatcher creates a dispatcher. Zero config fields take defaults.
func NewDispatcher(store storage.Storage, users UserLookup, sender Sender, config *DispatcherConfig) *Dispatcher {
	cfg := DispatcherConfig{
		BatchSize:    50,
		Workers:      4,
		SendTimeout:  5 * time.Second,
		PollInterval: 10 * time.Second,
	}
	if config != nil {
		if config.BatchSize > 0 {
			cfg.BatchSize = config.BatchSize
		}
		if config.Workers > 0 {
			cfg.Workers = config.Workers
		}
		if config.SendTimeout > 0 {
			cfg.SendTimeout = config.SendTimeout
		}
		if config.PollInterval > 0 {
			cfg.PollInterval = config.PollInterval
		}
		if config.ClaimTimeout > 0 {
			cfg.ClaimTimeout = config.ClaimTimeout
		}
	}
	if cfg.ClaimTimeout == 0 {
		cfg.ClaimTimeout = 2 * cfg.SendTimeout
	}
	return &Dispatcher{storage: store, users: users, sender: sender, config: cfg}
}

// Deliver claims and sends one notification. A row already claimed elsewhere
// is skipped without error.
func (d *Dispatcher) Deliver(ctx context.Context, n *storage.Notification) error {
	if err := d.storage.ClaimNotification(ctx, n.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	sendErr := d.send(ctx, n)

	// Record the outcome even when ctx has expired
	markCtx := context.WithoutCancel(ctx)
	if sendErr != nil {
		if err := d.storage.MarkNotificationFailed(markCtx, n.ID, sendErr.Error()); err != nil {
			log.Printf("notify: failed to record failure of %s: %v", n.ID, err)
		}
		return sendErr
	}
	if err := d.storage.MarkNotificationSent(markCtx, n.ID); err != nil {
		return fmt.Errorf("failed to mark %s sent: %w", n.ID, err)
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, n *storage.Notification) error {
	if n.Kind != storage.NotificationOrderConfirmation {
		return fmt.Errorf("unsupported notification kind %q", n.Kind)
	}

	user, err := d.users.GetUser(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if user.Email == "" {
		return fmt.Errorf("user %d has no email address", user.ID)
	}

	order, err := d.storage.GetOrder(ctx, n.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order %d: %w", n.OrderID, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()
	return d.sender.SendOrderConfirmation(sendCtx, order.View(), user.Email)
}

// DispatchPending delivers one batch of pending notifications and returns
// how many were handled without error. Individual failures are logged, not
// returned.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	pending, err := d.storage.ListPendingNotifications(ctx, d.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	results := make([]bool, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Workers)
	for i, n := range pending {
		g.Go(func() error {
			if err := d.Deliver(gctx, n); err != nil {
				log.Printf("notify: %s for order %d failed: %v", n.Kind, n.OrderID, err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	sent := 0
	for _, ok := range results {
		if ok {
			sent++
		}
	}
	return sent, nil
}

// RecoverStale returns rows left in sending by a stopped process to pending.
// A row claimed more recently than ClaimTimeout may still be in flight and is
// kept. Recovered rows can be sent twice; consumers dedup on the order
// reference.
func (d *Dispatcher) RecoverStale(ctx context.Context) (int, error) {
	n, err := d.storage.ReleaseStaleNotifications(ctx, time.Now().Add(-d.config.ClaimTimeout))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale notifications: %w", err)
	}
	return n, nil
}

// Run dispatches pending notifications until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	if n, err := d.RecoverStale(ctx); err != nil {
		log.Printf("notify: %v", err)
	} else if n > 0 {
		log.Printf("notify: returned %d interrupted notifications to pending", n)
	}

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchPending(ctx); err != nil && ctx.Err() == nil {
			log.Printf("notify: dispatch pass failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
