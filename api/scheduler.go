/*
scheduler.go - Tariff reload scheduler

PURPOSE:
  Keeps the tariff store in step with the tariff seed file. A reload parses
  and validates the file, upserts every row, and clears the tariff cache so
  the next calculation reads the new rows. It runs once at startup, on
  POST /api/admin/tariffs/reload, and optionally on a fixed interval.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - A file that fails validation is rejected as a whole; the store and the
    sample contract list keep their previous state
  - Reloads are serialized; a manual reload waits for a scheduled one
  - Frozen quotes are never touched (they carry their own snapshot)

CONFIGURATION:
  - SeedFile: YAML tariff file; empty uses the embedded default
  - Interval: How often to reload (0 disables the background loop)

USAGE:
  reloader := NewTariffReloader(store, cache, cfg.SeedFile, logger)
  if _, err := reloader.Reload(ctx); err != nil { ... }
  reloader.Start(cfg.ReloadInterval)
  // ... later
  reloader.Stop()

SEE ALSO:
  - handlers.go: ReloadTariffs endpoint (manual reload)
  - tariffdata/seed.go: Parsing, validation and Apply
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/tariffdata"
)

// CacheInvalidator is implemented by tariffcache.Repository.
type CacheInvalidator interface {
	Invalidate()
	InvalidateYear(year int)
	Len() int
}

// Resetter clears every tariff row. Both SQL stores implement it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ReloadObserver is implemented by metrics.Recorder.
type ReloadObserver interface {
	ObserveTariffReload(err error)
}

// TariffReloader applies the tariff seed file to the store.
type TariffReloader struct {
	Writer   energy.TariffWriter
	Cache    CacheInvalidator
	SeedFile string
	Observer ReloadObserver
	Log      zerolog.Logger

	reloadMu sync.Mutex

	mu       sync.RWMutex
	seed     *tariffdata.Seed
	loadedAt time.Time

	loopMu sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewTariffReloader creates a reloader. cache may be nil.
func NewTariffReloader(w energy.TariffWriter, cache CacheInvalidator, seedFile string, log zerolog.Logger) *TariffReloader {
	return &TariffReloader{
		Writer:   w,
		Cache:    cache,
		SeedFile: seedFile,
		Log:      log,
	}
}

// Source names the file a reload reads.
func (t *TariffReloader) Source() string {
	if t.SeedFile == "" {
		return "embedded"
	}
	return t.SeedFile
}

// Reload reads, validates and applies the seed file.
func (t *TariffReloader) Reload(ctx context.Context) (tariffdata.Summary, error) {
	return t.reload(ctx, nil)
}

// Replace clears the tariff tables before applying the file, so rows that
// were removed from the file disappear. Without a Resetter it is a plain
// Reload. A rejected file leaves the tables as they were.
func (t *TariffReloader) Replace(ctx context.Context) (tariffdata.Summary, error) {
	r, _ := t.Writer.(Resetter)
	return t.reload(ctx, r)
}

func (t *TariffReloader) reload(ctx context.Context, reset Resetter) (summary tariffdata.Summary, err error) {
	t.reloadMu.Lock()
	defer t.reloadMu.Unlock()

	defer func() {
		if t.Observer != nil {
			t.Observer.ObserveTariffReload(err)
		}
	}()

	var seed *tariffdata.Seed
	if t.SeedFile == "" {
		seed, err = tariffdata.Default()
	} else {
		seed, err = tariffdata.Load(t.SeedFile)
	}
	if err != nil {
		t.Log.Error().Err(err).Str("source", t.Source()).Msg("tariff file rejected")
		return summary, fmt.Errorf("tariff file %s: %w: %w", t.Source(), energy.ErrValidation, err)
	}

	if reset != nil {
		if err = reset.Reset(ctx); err != nil {
			return summary, fmt.Errorf("reset tariffs: %w", err)
		}
		t.Log.Warn().Str("source", t.Source()).Msg("tariff tables cleared for replace")
	}

	summary, err = tariffdata.Apply(ctx, t.Writer, seed)
	// Rows written before a failure are visible, so the cache goes either way.
	if t.Cache != nil {
		t.Cache.Invalidate()
	}
	if err != nil {
		t.Log.Error().Err(err).Str("source", t.Source()).Msg("tariff reload failed")
		return summary, err
	}

	t.mu.Lock()
	t.seed = seed
	t.loadedAt = time.Now()
	t.mu.Unlock()

	t.Log.Info().
		Str("source", t.Source()).
		Bool("replace", reset != nil).
		Int("tax_tables", summary.TaxTables).
		Int("operators", summary.Operators).
		Int("postcode_ranges", summary.PostcodeRanges).
		Int("network_fees", summary.NetworkFees).
		Int("contracts", summary.Contracts).
		Msg("tariffs reloaded")
	return summary, nil
}

// Contracts returns the sample contracts of the last successful reload.
func (t *TariffReloader) Contracts() []tariffdata.SampleContract {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.seed == nil {
		return nil
	}
	out := make([]tariffdata.SampleContract, len(t.seed.Contracts))
	copy(out, t.seed.Contracts)
	return out
}

// Contract resolves a sample contract by id.
func (t *TariffReloader) Contract(id string) (energy.ContractTariff, bool, error) {
	t.mu.RLock()
	seed := t.seed
	t.mu.RUnlock()
	if seed == nil {
		return nil, false, nil
	}
	return seed.Contract(id)
}

// LoadedAt returns when the last successful reload finished.
func (t *TariffReloader) LoadedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loadedAt
}

// =============================================================================
// BACKGROUND LOOP
// =============================================================================

// Start begins periodic reloads. A non-positive interval leaves it disabled.
func (t *TariffReloader) Start(interval time.Duration) {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()

	if interval <= 0 {
		t.Log.Debug().Msg("tariff reload scheduler disabled")
		return
	}
	if t.ticker != nil {
		return
	}

	t.ticker = time.NewTicker(interval)
	t.stop = make(chan struct{})
	t.wg.Add(1)
	go t.run(t.ticker, t.stop)

	t.Log.Info().Dur("interval", interval).Msg("tariff reload scheduler started")
}

// Stop ends the background loop and waits for a running reload.
func (t *TariffReloader) Stop() {
	t.loopMu.Lock()
	defer t.loopMu.Unlock()

	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.stop)
	t.wg.Wait()
	t.ticker = nil
	t.Log.Info().Msg("tariff reload scheduler stopped")
}

func (t *TariffReloader) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer t.wg.Done()

	for {
		select {
		case <-ticker.C:
			// Errors are logged and counted inside Reload.
			_, _ = t.Reload(context.Background())
		case <-stop:
			return
		}
	}
}
