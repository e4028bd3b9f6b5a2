package transfer

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"imgbeam/files"
)

// DefaultSweepInterval is used when JanitorOptions.Interval is unset.
const DefaultSweepInterval = 6 * time.Hour

// Pruner drops history rows for files that no longer exist.
// *storage.Store implements it.
type Pruner interface {
	DeleteTransfersByStoredPath(paths []string) (int64, error)
	PruneSeenAnnouncements(cutoffTimestamp int64) (int64, error)
}

// JanitorOptions controls the retention sweep.
type JanitorOptions struct {
	TransferDir string
	ShareDir    string
	Interval    time.Duration
	// Pruner may be nil.
	Pruner Pruner
	Logger logrus.FieldLogger
	Now    func() time.Time
}

// SweepResult summarizes one retention sweep.
type SweepResult struct {
	Deleted     []string  `json:"deleted"`
	RowsPruned  int64     `json:"rows_pruned"`
	SeenPruned  int64     `json:"seen_pruned"`
	CompletedAt time.Time `json:"completed_at"`
}

// Janitor deletes staged and received images older than files.RetentionWindow.
type Janitor struct {
	opts JanitorOptions
	log  logrus.FieldLogger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewJanitor validates options and returns a stopped Janitor.
func NewJanitor(options JanitorOptions) (*Janitor, error) {
	if options.TransferDir == "" && options.ShareDir == "" {
		return nil, errors.New("at least one root is required")
	}
	if options.Interval <= 0 {
		options.Interval = DefaultSweepInterval
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Janitor{
		opts: options,
		log:  options.Logger.WithField("component", "janitor"),
		stop: make(chan struct{}),
	}, nil
}

// Sweep runs one retention pass. Per-root failures are logged and returned
// joined; files deleted from healthy roots are still reported.
func (j *Janitor) Sweep() (SweepResult, error) {
	now := j.opts.Now()
	cutoff := now.Add(-files.RetentionWindow)

	deleted, cleanupErr := files.SweepOldFiles(j.opts.TransferDir, j.opts.ShareDir, now)
	result := SweepResult{Deleted: deleted, CompletedAt: now}
	errs := []error{cleanupErr}

	if j.opts.Pruner != nil {
		rows, err := j.opts.Pruner.DeleteTransfersByStoredPath(deleted)
		errs = append(errs, err)
		result.RowsPruned = rows

		seen, err := j.opts.Pruner.PruneSeenAnnouncements(cutoff.UnixMilli())
		errs = append(errs, err)
		result.SeenPruned = seen
	}

	err := errors.Join(errs...)
	log := j.log.WithFields(logrus.Fields{
		"deleted":     len(result.Deleted),
		"rows_pruned": result.RowsPruned,
		"seen_pruned": result.SeenPruned,
	})
	if err != nil {
		log.WithError(err).Warn("Retention sweep finished with errors")
	} else {
		log.Debug("Retention sweep finished")
	}
	return result, err
}

// Start sweeps once immediately and then on every interval until Stop.
func (j *Janitor) Start() {
	j.startOnce.Do(func() {
		_, _ = j.Sweep()

		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			ticker := time.NewTicker(j.opts.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					_, _ = j.Sweep()
				case <-j.stop:
					return
				}
			}
		}()
	})
}

// Stop ends the sweep loop and waits for an in-flight sweep.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stop)
		j.wg.Wait()
	})
}
