// Package backups keeps the list of server-side configuration backups fresh.
package backups

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/omniaweb/hnmigrate/internal/gateway"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Defaults for Config.
const (
	DefaultInterval = 60 * time.Second
	DefaultTimeout  = 8 * time.Second
)

// Lister fetches the current backup list.
type Lister interface {
	Backups(ctx context.Context) ([]gateway.Backup, error)
}

// Config configures a Poller.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Snapshot is the poller's view after the latest fetch.
type Snapshot struct {
	Backups     []gateway.Backup
	FetchedAt   time.Time
	Err         error
	AutoRefresh bool
}

// Poller refreshes the backup list on an interval. A request that times out
// suspends automatic refresh until a manual Refresh succeeds or Resume is
// called; other errors leave it running.
type Poller struct {
	lister   Lister
	config   Config
	onUpdate func(Snapshot)
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
	auto    bool
	last    Snapshot
}

// NewPoller creates a Poller. onUpdate, when set, is called after every fetch.
func NewPoller(lister Lister, config Config, onUpdate func(Snapshot), logger zerolog.Logger) *Poller {
	return &Poller{
		lister:   lister,
		config:   config.withDefaults(),
		onUpdate: onUpdate,
		cron:     cron.New(),
		auto:     true,
		logger:   logger.With().Str("component", "backups_poller").Logger(),
	}
}

// Start schedules automatic refresh and fetches once immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.auto = true
	err := p.scheduleLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.cron.Start()
	p.logger.Info().
		Dur("interval", p.config.Interval).
		Dur("timeout", p.config.Timeout).
		Msg("backups poller started")

	p.fetch(ctx, false)
	return nil
}

// Stop halts automatic refresh. The returned context is done once a running
// fetch has finished.
func (p *Poller) Stop() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	p.running = false
	p.unscheduleLocked()
	p.logger.Info().Msg("stopping backups poller")
	return p.cron.Stop()
}

// Refresh fetches immediately. A success re-enables automatic refresh.
func (p *Poller) Refresh(ctx context.Context) Snapshot {
	return p.fetch(ctx, true)
}

// Resume re-enables automatic refresh, as after a fresh login.
func (p *Poller) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auto = true
	if !p.running {
		return nil
	}
	return p.scheduleLocked()
}

// AutoRefresh reports whether automatic refresh is enabled.
func (p *Poller) AutoRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auto
}

// Last returns the latest snapshot.
func (p *Poller) Last() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Poller) tick() {
	p.mu.Lock()
	auto := p.auto
	p.mu.Unlock()
	if !auto {
		return
	}
	p.fetch(context.Background(), false)
}

func (p *Poller) fetch(ctx context.Context, manual bool) Snapshot {
	reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	list, err := p.lister.Backups(reqCtx)

	p.mu.Lock()
	snap := Snapshot{FetchedAt: time.Now(), Err: err}
	switch {
	case err == nil:
		snap.Backups = list
		if manual && !p.auto {
			p.auto = true
			if p.running {
				if serr := p.scheduleLocked(); serr != nil {
					p.logger.Error().Err(serr).Msg("failed to reschedule backups refresh")
				}
			}
			p.logger.Info().Msg("backups auto refresh re-enabled")
		}
	case errors.Is(err, context.DeadlineExceeded):
		snap.Backups = p.last.Backups
		if p.auto {
			p.auto = false
			p.unscheduleLocked()
			p.logger.Warn().Dur("timeout", p.config.Timeout).Msg("backups request timed out, auto refresh disabled")
		}
	default:
		snap.Backups = p.last.Backups
		p.logger.Error().Err(err).Msg("failed to fetch backups")
	}
	snap.AutoRefresh = p.auto
	p.last = snap
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(snap)
	}
	return snap
}

func (p *Poller) scheduleLocked() error {
	if p.entryID != 0 {
		return nil
	}
	id, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.config.Interval), p.tick)
	if err != nil {
		return fmt.Errorf("schedule backups refresh: %w", err)
	}
	p.entryID = id
	return nil
}

func (p *Poller) unscheduleLocked() {
	if p.entryID == 0 {
		return
	}
	p.cron.Remove(p.entryID)
	p.entryID = 0
}
