package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
	"share-vault/internal/observability"
	"share-vault/internal/solana"
)

// AccountSubscriber streams account changes.
type AccountSubscriber interface {
	SubscribeAccount(ctx context.Context, addr domain.Address) (<-chan solana.AccountNotification, error)
}

// Watcher re-checks a vault whenever its custody account changes.
type Watcher struct {
	subscriber AccountSubscriber
	reader     assetledger.Reader
	refresh    func(context.Context, domain.Ticker) (*domain.VaultRecord, error)
	onReport   func(*Report)
	minGap     time.Duration
	logger     *log.Logger
}

// WatcherOptions contains configuration for creating a Watcher.
type WatcherOptions struct {
	Subscriber AccountSubscriber
	Reader     assetledger.Reader

	// Refresh reloads the vault record before each check. Optional.
	Refresh func(context.Context, domain.Ticker) (*domain.VaultRecord, error)

	OnReport func(*Report) // optional
	MinGap   time.Duration // minimum time between checks; zero checks every change
	Logger   *log.Logger
}

// NewWatcher creates a new Watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		subscriber: opts.Subscriber,
		reader:     opts.Reader,
		refresh:    opts.Refresh,
		onReport:   opts.OnReport,
		minGap:     opts.MinGap,
		logger:     logger,
	}
}

// Watch checks v once, then again after every custody account change.
// Changes closer together than MinGap are coalesced into one later check.
// It blocks until ctx is cancelled or the subscription closes.
func (w *Watcher) Watch(ctx context.Context, v *domain.VaultRecord) error {
	notifications, err := w.subscriber.SubscribeAccount(ctx, v.CustodyAccount)
	if err != nil {
		return fmt.Errorf("subscribe custody %s: %w", v.CustodyAccount, err)
	}
	w.logger.Printf("Watching custody %s of vault %s (%s)", v.CustodyAccount, v.Address, v.Ticker)

	w.check(ctx, v, 0)
	last := time.Now()

	// Changes inside minGap are checked once, when the gap has passed.
	var (
		timer       *time.Timer
		deferred    <-chan time.Time
		pendingSlot int64
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return fmt.Errorf("custody subscription closed")
			}
			if wait := w.minGap - time.Since(last); w.minGap > 0 && wait > 0 {
				pendingSlot = n.Slot
				if deferred == nil {
					timer = time.NewTimer(wait)
					deferred = timer.C
				}
				continue
			}
			if timer != nil {
				timer.Stop()
				deferred = nil
			}
			w.check(ctx, v, n.Slot)
			last = time.Now()
		case <-deferred:
			deferred = nil
			w.check(ctx, v, pendingSlot)
			last = time.Now()
		}
	}
}

func (w *Watcher) check(ctx context.Context, v *domain.VaultRecord, slot int64) {
	if w.refresh != nil {
		fresh, err := w.refresh(ctx, v.Ticker)
		if err != nil {
			w.logger.Printf("Reload %s failed at slot %d: %v", v.Ticker, slot, err)
			observability.RecordReconcileError()
			return
		}
		v = fresh
	}

	report, err := Check(ctx, v, w.reader)
	if err != nil {
		w.logger.Printf("Reconcile %s failed at slot %d: %v", v.Ticker, slot, err)
		observability.RecordReconcileError()
		return
	}

	outcome := report.Outcome()
	observability.RecordReconciliation(v.Address.String(), string(outcome), report.CustodyBalance, report.SharesSupply)
	if outcome != OutcomeCollateralized {
		w.logger.Printf("Vault %s %s at slot %d: total=%d custody=%d supply=%d collateralization=%s",
			v.Ticker, outcome, slot, report.TotalBaseAssets, report.CustodyBalance, report.SharesSupply,
			report.Collateralization.String())
	}
	if w.onReport != nil {
		w.onReport(report)
	}
}
