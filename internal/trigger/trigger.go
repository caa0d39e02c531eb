// Package trigger decides when the queue is synced: on a cron schedule, when
// connectivity comes back, and right after an enqueue.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/offsync/internal/bus"
	"github.com/matheus3301/offsync/internal/connectivity"
	"github.com/matheus3301/offsync/internal/offline"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Syncer runs one sync pass.
type Syncer interface {
	Sync(ctx context.Context) (offline.Result, error)
}

// Config selects the sources that request a pass.
type Config struct {
	// Schedule is a standard 5-field cron expression or an @every
	// descriptor. Empty disables scheduled passes.
	Schedule    string
	OnReconnect bool
	OnEnqueue   bool
}

// Trigger funnels every sync request into a single worker so that at most
// one request is queued behind the running pass.
type Trigger struct {
	syncer Syncer
	bus    *bus.Bus
	cfg    Config
	logger *zap.Logger
	cron   *cron.Cron

	kick   chan string
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg and creates a stopped trigger.
func New(syncer Syncer, b *bus.Bus, cfg Config, logger *zap.Logger) (*Trigger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trigger{
		syncer: syncer,
		bus:    b,
		cfg:    cfg,
		logger: logger,
		kick:   make(chan string, 1),
		cron:   cron.New(cron.WithLogger(cronLogger{logger.Sugar()})),
	}
	if cfg.Schedule != "" {
		if _, err := t.cron.AddFunc(cfg.Schedule, func() { t.Request("schedule") }); err != nil {
			return nil, fmt.Errorf("sync schedule %q: %w", cfg.Schedule, err)
		}
	}
	return t, nil
}

// Start launches the worker, the bus listener and the cron scheduler.
func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go t.worker(ctx)

	if t.bus != nil && (t.cfg.OnReconnect || t.cfg.OnEnqueue) {
		var prefixes []string
		if t.cfg.OnReconnect {
			prefixes = append(prefixes, connectivity.EventChanged)
		}
		if t.cfg.OnEnqueue {
			prefixes = append(prefixes, offline.EventEnqueued)
		}
		events, unsub := t.bus.Subscribe(16, prefixes...)
		t.wg.Add(1)
		go t.listen(ctx, events, unsub)
	}

	t.cron.Start()
	t.logger.Info("sync trigger started",
		zap.String("schedule", t.cfg.Schedule),
		zap.Bool("on_reconnect", t.cfg.OnReconnect),
		zap.Bool("on_enqueue", t.cfg.OnEnqueue),
	)
}

// Stop halts scheduling and waits for a running pass to return.
func (t *Trigger) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	<-t.cron.Stop().Done()
	cancel()
	t.wg.Wait()
	t.logger.Info("sync trigger stopped")
}

// Request asks for a pass. It never blocks; a request made while another is
// already waiting is merged into it.
func (t *Trigger) Request(reason string) {
	select {
	case t.kick <- reason:
	default:
		t.logger.Debug("sync request coalesced", zap.String("reason", reason))
	}
}

func (t *Trigger) worker(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-t.kick:
			res, err := t.syncer.Sync(ctx)
			if err != nil {
				t.logger.Error("sync pass failed", zap.String("reason", reason), zap.Error(err))
				continue
			}
			t.logger.Debug("sync pass finished",
				zap.String("reason", reason),
				zap.String("outcome", string(res.Outcome)),
			)
		}
	}
}

func (t *Trigger) listen(ctx context.Context, events <-chan bus.Event, unsub func()) {
	defer t.wg.Done()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Kind {
			case connectivity.EventChanged:
				if c, ok := evt.Payload.(connectivity.Change); ok && c.To == connectivity.Online {
					t.Request("reconnect")
				}
			case offline.EventEnqueued:
				t.Request("enqueue")
			}
		}
	}
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
