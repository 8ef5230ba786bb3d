// Package syncer runs one incremental sync pass: list the remote CSV
// drops, keep those inside the scope window, diff against the processed
// ledger, then fetch and merge each new file into its monthly partition.
// One bad file never aborts the run; only connection-level failures do.
package syncer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"rtmksync/internal/config"
	"rtmksync/internal/ledger"
	"rtmksync/internal/monthly"
	"rtmksync/internal/remote"
	"rtmksync/internal/scope"
)

// Report is the outcome of a run: how many new files merged, how many
// skipped after a per-file failure.
type Report struct {
	Merged  int
	Skipped int
}

// Runner executes sync runs. One Runner per process; runs must not
// overlap, since the ledger and partition files assume a single writer.
type Runner struct {
	cfg    config.Config
	src    remote.Source
	logger *zap.Logger

	// now supplies the wall clock used for undecidable partition keys.
	now func() time.Time
}

// New returns a Runner over the given source.
func New(cfg config.Config, src remote.Source, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, src: src, logger: logger, now: time.Now}
}

// Run performs one full sync pass. Context cancellation between files is a
// graceful early stop, not an error; connection and listing failures are
// fatal and returned. The remote session is released on every path.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	r.logger.Info("=== RTMK sync start ===")

	if err := r.ensureDirs(); err != nil {
		return Report{}, err
	}

	led := ledger.Load(r.cfg.StateFile)
	r.logger.Info("ledger loaded",
		zap.String("path", r.cfg.StateFile),
		zap.Int("entries", led.Len()))

	if err := r.src.Connect(); err != nil {
		return Report{}, err
	}
	defer r.src.Close()

	names, err := r.src.List()
	if err != nil {
		return Report{}, err
	}
	sort.Strings(names)

	window := scope.Window{Start: r.cfg.StartDate()}
	var inScope []string
	for _, n := range names {
		if window.Contains(n) {
			inScope = append(inScope, n)
		}
	}
	if len(inScope) == 0 {
		r.logger.Info("no files in scope; check START_FROM_DATE and FTP_DIR",
			zap.Int("listed", len(names)))
		return Report{}, nil
	}

	agg := monthly.New(r.cfg.DataDir, monthly.ParseHeaderPolicy(r.cfg.HeaderPolicy))

	if r.cfg.Rebuild {
		if err := r.clearMonths(agg, inScope); err != nil {
			return Report{}, err
		}
	}

	var newFiles []string
	for _, n := range inScope {
		if !led.Contains(n) {
			newFiles = append(newFiles, n)
		}
	}
	if len(newFiles) == 0 {
		r.logger.Info("no diff: no new files")
		return Report{}, nil
	}

	var rep Report
	interrupted := false
	for _, name := range newFiles {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		ym := scope.YearMonth(name, r.now())
		if err := r.ingest(agg, name, ym); err != nil {
			rep.Skipped++
			r.logger.Warn("failed, skipping file", zap.String("file", name), zap.Error(err))
			continue
		}
		led.Add(name)
		rep.Merged++
	}

	if interrupted {
		// Matches the legacy interrupt path: the ledger stays unsaved, so
		// the next run re-processes what this one merged.
		r.logger.Info("interrupted; stopping early",
			zap.Int("ok", rep.Merged), zap.Int("skipped", rep.Skipped))
		return rep, nil
	}

	if err := led.Save(); err != nil {
		return rep, err
	}

	r.logger.Info("=== RTMK sync end (success) ===",
		zap.Int("ok", rep.Merged), zap.Int("skipped", rep.Skipped))
	return rep, nil
}

// ingest is the per-file unit of failure isolation: fetch, archive the raw
// bytes, merge into the month partition.
func (r *Runner) ingest(agg *monthly.Aggregator, name, ym string) error {
	r.logger.Info("downloading", zap.String("file", name))
	raw, err := r.src.Fetch(name)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(r.cfg.RawDir, name), raw, 0644); err != nil {
		return err
	}

	added, err := agg.Merge(raw, ym)
	if err != nil {
		return err
	}
	r.logger.Info("merged",
		zap.String("file", name),
		zap.String("month", ym),
		zap.Int("rows", added))
	return nil
}

func (r *Runner) clearMonths(agg *monthly.Aggregator, inScope []string) error {
	seen := make(map[string]struct{})
	var months []string
	for _, n := range inScope {
		ym := scope.YearMonth(n, r.now())
		if _, ok := seen[ym]; !ok {
			seen[ym] = struct{}{}
			months = append(months, ym)
		}
	}
	sort.Strings(months)

	removed, err := agg.RemoveMonths(months)
	if err != nil {
		return err
	}
	for _, ym := range removed {
		r.logger.Info("[rebuild] removed month file", zap.String("month", ym))
	}
	return nil
}

func (r *Runner) ensureDirs() error {
	for _, dir := range []string{
		r.cfg.DataDir,
		r.cfg.RawDir,
		filepath.Dir(r.cfg.StateFile),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
