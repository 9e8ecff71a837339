// Package killswitch gives the operator a wordless halt: drop a file named
// KILL into the automaton home and the loop stands down. The file may carry
// a halt duration on its first line and a reason after it; an empty file
// halts for an hour. The watcher consumes the file once the halt is armed,
// so a later drop starts a fresh window.
package killswitch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"automa/internal/config"
	"automa/internal/logging"
	"automa/internal/store"
)

// DefaultHalt is the window used when the KILL file names no duration.
const DefaultHalt = time.Hour

const defaultReason = "operator halt"

// Watcher arms the kill switch from filesystem drops.
type Watcher struct {
	st   *store.Store
	home *config.Home
}

// New builds a watcher over the automaton home.
func New(st *store.Store, home *config.Home) *Watcher {
	return &Watcher{st: st, home: home}
}

// Run watches the home directory until the context ends. A KILL file
// already present at entry is honored immediately.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting kill switch watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.home.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.home.Dir, err)
	}
	logging.KernelDebug("Kill switch watching %s", w.home.Dir)

	w.consume()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != "KILL" {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.consume()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.KernelWarn("Kill switch watcher error: %v", err)
		}
	}
}

// consume arms the halt from the KILL file, then removes it. Arming is
// idempotent per drop; a missing file (already consumed, or a partial
// write event) is quietly ignored.
func (w *Watcher) consume() {
	path := w.home.KillSwitchPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.KernelWarn("Could not read kill switch file: %v", err)
		}
		return
	}

	halt, reason := parse(string(data))
	until := time.Now().Add(halt)

	if err := w.st.SetKVTime(store.KeyKillSwitchUntil, until); err != nil {
		logging.KernelError("Could not arm kill switch: %v", err)
		return
	}
	if err := w.st.SetKV(store.KeyKillSwitchReason, reason); err != nil {
		logging.KernelError("Could not record kill switch reason: %v", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.KernelWarn("Could not remove kill switch file: %v", err)
	}
	logging.Kernel("Kill switch armed until %s: %s", until.Format(time.RFC3339), reason)
}

// parse splits the file into a halt window and a reason. The first line is
// tried as a duration; everything else is the reason. A file with no
// parseable duration halts for the default window with its whole content
// as the reason.
func parse(content string) (time.Duration, string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return DefaultHalt, defaultReason
	}

	first, rest, _ := strings.Cut(content, "\n")
	first = strings.TrimSpace(first)
	rest = strings.TrimSpace(rest)

	if d, err := time.ParseDuration(first); err == nil && d > 0 {
		if rest == "" {
			rest = defaultReason
		}
		return d, rest
	}
	return DefaultHalt, content
}
