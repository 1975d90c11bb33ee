package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/syncer"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the corpus and resync on changes",
	Long: `Run an initial sync, then watch the corpus root for filesystem changes
and trigger a resync after a quiet period. Bursts of writes (an rsync, a
git checkout) collapse into one run.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before a change triggers a resync")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watchTree(watcher, a.cfg.Corpus.Root); err != nil {
		return err
	}

	if _, err := a.reconciler.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		a.logger.Error("initial sync failed", zap.Error(err))
	}

	// The timer is armed on the first event and reset on each subsequent
	// one; it fires only after the corpus has been quiet for the debounce
	// window.
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	a.logger.Info("watching corpus", zap.String("root", a.cfg.Corpus.Root),
		zap.Duration("debounce", watchDebounce))
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// New directories must be watched before files land in them.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchTree(watcher, event.Name)
				}
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			release, err := a.lock.Acquire()
			if errors.Is(err, syncer.ErrRunInProgress) {
				timer.Reset(watchDebounce)
				continue
			}
			if _, err := a.reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("resync failed", zap.Error(err))
			}
			release()
		}
	}
}

// watchTree registers root and every directory below it.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
