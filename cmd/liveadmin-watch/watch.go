package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/amoylab/liveadmin/internal/client"
	"github.com/amoylab/liveadmin/internal/common/config"
	"github.com/amoylab/liveadmin/internal/common/dto"
	"go.uber.org/zap"
)

const timeLayout = "15:04:05"

// watcher prints what the connection manager reports and keeps the latest
// notifications in a buffer
type watcher struct {
	out     io.Writer
	outMu   sync.Mutex
	buffer  *client.Buffer
	manager *client.Manager
}

func newWatcher(lg *zap.Logger, cfg *config.WatchConfig, out io.Writer) (*watcher, error) {
	transport, err := client.NewWSTransport(lg, cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	return newWatcherWith(lg, cfg, out, transport, client.NewFileCredentials(cfg.TokenFile)), nil
}

func newWatcherWith(lg *zap.Logger, cfg *config.WatchConfig, out io.Writer, transport client.Transport, creds client.CredentialSource, opts ...client.Option) *watcher {
	w := &watcher{out: out, buffer: client.NewBuffer()}
	opts = append([]client.Option{
		client.WithBaseDelay(cfg.BaseDelay),
		client.WithListener(w),
		client.OnStateChange(w.onStateChange),
	}, opts...)
	w.manager = client.NewManager(lg, transport, creds, opts...)
	return w
}

// run starts the manager and blocks until ctx ends; a value on restart
// starts it again after it gave up
func (w *watcher) run(ctx context.Context, restart <-chan os.Signal) error {
	w.manager.Start()
	defer w.manager.Stop()
	for {
		select {
		case <-ctx.Done():
			w.printRecent()
			return nil
		case <-restart:
			if w.manager.State() == client.Failed {
				w.printf("restarting\n")
				w.manager.Start()
			}
		}
	}
}

func (w *watcher) OnPresence(n int) {
	w.printf("[%s] admins online: %d\n", time.Now().Format(timeLayout), n)
}

func (w *watcher) OnEvent(ev dto.EventPayload) {
	n := w.buffer.Ingest(ev)
	w.printf("[%s] %-7s %s: %s\n", n.ReceivedAt.Format(timeLayout), ev.Kind, ev.Title, ev.Message)
}

func (w *watcher) onStateChange(sc client.StateChange) {
	switch sc.To {
	case client.Connected:
		w.printf("online\n")
	case client.Reconnecting:
		w.printf("offline: %v, reconnecting in %s (attempt %d/%d)\n",
			sc.Err, w.manager.Delay(sc.Attempt), sc.Attempt, client.MaxReconnectAttempts)
	case client.Failed:
		if errors.Is(sc.Err, client.ErrNoCredential) {
			w.printf("offline: %v\n", sc.Err)
			return
		}
		w.printf("offline: gave up after %d attempts (%v), send SIGHUP to retry\n", sc.Attempt, sc.Err)
	}
}

// printRecent lists the notifications a display would show, newest first
func (w *watcher) printRecent() {
	visible := w.buffer.Visible()
	if len(visible) == 0 {
		return
	}
	w.printf("latest %d of %d notifications:\n", len(visible), w.buffer.Len())
	for _, n := range visible {
		w.printf("  [%s] %s: %s\n", n.ReceivedAt.Format(timeLayout), n.Event.Title, n.Event.Message)
	}
}

func (w *watcher) printf(format string, args ...any) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}
