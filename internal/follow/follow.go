// Copyright 2025 Magnus Pierre
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package follow drives Update on a growing file as it changes on disk.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/magpierre/rowwindow/datatable"
)

const (
	// DefaultPollInterval is how often the file is checked without an event.
	DefaultPollInterval = time.Second
	// DefaultUpdatesPerSecond bounds Update calls while catching up.
	DefaultUpdatesPerSecond = 20
)

// Option configures a Follower.
type Option func(*Follower)

// WithPollInterval sets how often the file is checked when no event arrives.
// Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(f *Follower) {
		if d >= 0 {
			f.poll = d
		}
	}
}

// WithUpdatesPerSecond limits how many Update calls run per second while
// catching up. Zero or less removes the limit.
func WithUpdatesPerSecond(n float64) Option {
	return func(f *Follower) {
		if n <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(n), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Follower) {
		if l != nil {
			f.logger = l
		}
	}
}

// Follower watches one file and keeps a Tailer current with it.
type Follower struct {
	path    string
	target  datatable.Tailer
	poll    time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New returns a Follower for target, which must be reading path.
func New(path string, target datatable.Tailer, opts ...Option) *Follower {
	f := &Follower{
		path:    filepath.Clean(path),
		target:  target,
		poll:    DefaultPollInterval,
		limiter: rate.NewLimiter(DefaultUpdatesPerSecond, 1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run catches the target up once, then again after every write event or
// poll tick, calling fn after each catch-up. It returns nil when ctx is
// cancelled or the file is removed or renamed, in which case the target
// stops watching. An error from Update or fn ends Run.
func (f *Follower) Run(ctx context.Context, fn func() error) error {
	// The directory is watched rather than the file so that unlinking is
	// reported even while the file is held open.
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		f.logger.WarnContext(ctx, "follow: watch failed, polling only", "path", f.path, "err", err)
	}

	var tick <-chan time.Time
	if f.poll > 0 {
		t := time.NewTicker(f.poll)
		defer t.Stop()
		tick = t.C
	}

	if err := f.catchUp(ctx, fn); err != nil {
		return done(ctx, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				f.stop(ctx, event.Op.String())
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := f.catchUp(ctx, fn); err != nil {
					return done(ctx, err)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.WarnContext(ctx, "follow: watcher error", "path", f.path, "err", err)
		case <-tick:
			if _, err := os.Stat(f.path); errors.Is(err, fs.ErrNotExist) {
				f.stop(ctx, "missing")
				return nil
			}
			if err := f.catchUp(ctx, fn); err != nil {
				return done(ctx, err)
			}
		}
	}
}

// catchUp calls Update until the target reports it has consumed everything,
// then calls fn.
func (f *Follower) catchUp(ctx context.Context, fn func() error) error {
	rounds := 0
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := f.target.Update(); err != nil {
			return fmt.Errorf("failed to update %s: %w", f.path, err)
		}
		rounds++
		if f.target.UpToDate() {
			break
		}
	}
	if rounds > 1 {
		f.logger.DebugContext(ctx, "follow: caught up", "path", f.path, "updates", rounds)
	}
	if fn == nil {
		return nil
	}
	return fn()
}

func (f *Follower) stop(ctx context.Context, reason string) {
	f.logger.InfoContext(ctx, "follow: file went away, stopping", "path", f.path, "reason", reason)
	f.target.StopWatching()
}

// done maps errors caused by cancellation to a clean exit.
func done(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
