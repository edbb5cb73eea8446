package worker

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"campus-compass/internal/domain"
	"campus-compass/internal/usecase"

	"github.com/fsnotify/fsnotify"
)

const (
	passTimeout    = 10 * time.Minute
	initialBackoff = 1 * time.Second
	maxBackoff     = 5 * time.Minute
)

// CorpusWatcher watches the category folders and triggers an incremental
// indexing pass when files settle. Events are debounced so a bulk copy
// produces one pass, not one per file.
type CorpusWatcher struct {
	corpusDir string
	debounce  time.Duration
	indexer   usecase.IndexDocumentsUsecase
	logger    *slog.Logger
	stopChan  chan struct{}
	backoff   time.Duration
}

// NewCorpusWatcher creates a CorpusWatcher over the corpus root.
func NewCorpusWatcher(
	corpusDir string,
	debounce time.Duration,
	indexer usecase.IndexDocumentsUsecase,
	logger *slog.Logger,
) *CorpusWatcher {
	return &CorpusWatcher{
		corpusDir: corpusDir,
		debounce:  debounce,
		indexer:   indexer,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start begins watching. It returns an error only when the watcher itself
// cannot be created; missing category folders are skipped with a warning.
func (w *CorpusWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	watched := 0
	for _, category := range domain.Categories() {
		dir := filepath.Join(w.corpusDir, string(category))
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn("corpus_folder_not_watched",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
			continue
		}
		watched++
	}

	w.logger.Info("corpus_watcher_started",
		slog.String("corpus_dir", w.corpusDir),
		slog.Int("watched_folders", watched),
		slog.Duration("debounce", w.debounce))
	go w.run(watcher)
	return nil
}

// Stop terminates the watcher loop.
func (w *CorpusWatcher) Stop() {
	w.logger.Info("corpus_watcher_stopping")
	close(w.stopChan)
}

func (w *CorpusWatcher) run(watcher *fsnotify.Watcher) {
	defer func() { _ = watcher.Close() }()

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("corpus_change_detected",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("corpus_watcher_error", slog.String("error", err.Error()))

		case <-timerCh:
			timer = nil
			timerCh = nil
			w.runPass()
		}
	}
}

// relevant filters watcher noise down to supported document changes.
func (w *CorpusWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return domain.SupportedExtensions[ext]
}

func (w *CorpusWatcher) runPass() {
	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()

	report, err := w.indexer.IndexAll(ctx, usecase.IndexOptions{Incremental: true})
	if err != nil {
		w.backoff = w.nextBackoff(w.backoff)
		w.logger.Warn("watcher_indexing_failed",
			slog.String("error", err.Error()),
			slog.Duration("backoff", w.backoff))
		select {
		case <-w.stopChan:
		case <-time.After(w.backoff):
			w.runPass()
		}
		return
	}

	w.backoff = 0
	w.logger.Info("watcher_indexing_complete",
		slog.Int("processed", len(report.ProcessedFiles)),
		slog.Int("skipped", len(report.SkippedFiles)),
		slog.Int("removed", len(report.RemovedFiles)))
}

func (w *CorpusWatcher) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
