package command

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tablesync/internal/config"
	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/core/service"
	"github.com/yndnr/tablesync/internal/infra/confloader"
	"github.com/yndnr/tablesync/internal/infra/shutdown"
	"github.com/yndnr/tablesync/internal/server/httpserver"
	"github.com/yndnr/tablesync/internal/telemetry/logger"
	"github.com/yndnr/tablesync/internal/telemetry/metric"
)

const shutdownTimeout = 10 * time.Second

// changeView is one row change seen by a watcher.
type changeView struct {
	Op      string          `json:"op"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version uint64          `json:"version"`
}

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Follow a table and print every change until interrupted",
		ArgsUsage: "TABLE",
		Description: `The table is cached locally and re-read every --interval. With --stdin,
lines of the form "set KEY JSON" and "delete KEY" are applied through the
cache. SIGHUP and edits to the configuration file reload the log level.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval (default reactive.refresh_interval)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve /metrics, /healthz and the /watch websocket stream on ADDR (default metrics.addr)",
			},
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "Apply set/delete lines read from standard input",
			},
		},
		Action: watch,
	}
}

func watch(c *cli.Context) error {
	if err := requireArgs(c, 1, "TABLE"); err != nil {
		return err
	}
	s := getSession(c)
	s.metrics = metric.NewRegistry()
	ctx, cancel := context.WithCancel(s.commandContext(c, "watch"))
	defer cancel()
	table := c.Args().First()

	interval := s.cfg.Reactive.RefreshInterval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}
	metricsAddr := s.cfg.Metrics.Addr
	if c.IsSet("metrics-addr") {
		metricsAddr = c.String("metrics-addr")
	}

	engine, err := s.openEngine(ctx)
	if err != nil {
		return err
	}
	h := shutdown.NewHandler(shutdownTimeout).WithLogger(s.slog)
	h.OnShutdown(func(context.Context) error { return engine.Close() })
	s.metrics.Prometheus().MustRegister(metric.NewCollector(engine.RowCounts))

	w := &watcher{s: s, table: table}
	rts, err := service.NewReactiveTableService(ctx, bind[json.RawMessage](s, engine, table),
		service.WithOptimistic[json.RawMessage](s.cfg.Reactive.Optimistic),
		service.WithReactiveEqual(rawEqual),
	)
	if err != nil {
		h.Shutdown()
		return err
	}
	w.last = rts.Snapshot()
	s.metrics.SetCacheRows(table, w.last.Len())
	if err := w.print(tableRows(table, w.last)); err != nil {
		h.Shutdown()
		return err
	}
	unsubscribe := rts.Subscribe(w.observe)

	if metricsAddr != "" {
		w.hub = httpserver.NewHub(s.slog)
		srv := httpserver.New(metricsAddr, httpserver.NewRouter(httpserver.RouterConfig{
			Metrics: s.metrics.Handler(),
			Hub:     w.hub,
			Logger:  s.slog,
		}))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("http server failed", "addr", metricsAddr, "error", err)
			}
		}()
		h.OnShutdown(srv.Shutdown)
		h.OnShutdown(func(context.Context) error { return w.hub.Close() })
		s.log.Info("serving metrics and watch stream", "addr", metricsAddr)
	}

	reload := func() { s.reloadConfig() }
	h.OnReload(reload)
	if path := s.loader.FilePath(); path != "" {
		cw, err := confloader.NewWatcher(confloader.WithWatcherLogger(s.slog))
		if err != nil {
			h.Shutdown()
			return err
		}
		if err := cw.Watch(path); err != nil {
			cw.Stop()
			h.Shutdown()
			return err
		}
		cw.OnChange(func(string) { reload() })
		cw.StartAsync()
		h.OnShutdown(func(context.Context) error { return cw.Stop() })
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.refreshLoop(ctx, rts, interval)
	}()
	if c.Bool("stdin") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.applyLines(ctx, rts, c.App.Reader)
		}()
	}
	h.OnShutdown(func(sctx context.Context) error {
		defer unsubscribe()
		cancel()
		stopped := make(chan struct{})
		go func() {
			wg.Wait()
			close(stopped)
		}()
		select {
		case <-stopped:
			return nil
		case <-sctx.Done():
			return fmt.Errorf("watch loops did not stop: %w", sctx.Err())
		}
	})

	s.log.Info("watching table", "table", table, "version", w.last.Version(), "interval", interval)
	return h.Wait(ctx)
}

// reloadConfig re-reads the configuration and applies the log level.
// Storage settings only take effect on the next run.
func (s *session) reloadConfig() {
	cfg := config.Default()
	if err := s.loader.Reload(cfg); err != nil {
		s.log.Warn("configuration reload failed", "error", err)
		return
	}
	if err := config.Verify(cfg); err != nil {
		s.log.Warn("reloaded configuration is invalid", "error", err)
		return
	}
	logger.SetLevel(cfg.Log.Level)
	s.cfg.Log = cfg.Log
	s.log.Info("configuration reloaded", "log_level", logger.GetLevel())
}

// watcher prints the changes of one reactive table.
type watcher struct {
	s     *session
	table string
	hub   *httpserver.Hub

	mu   sync.Mutex
	last domain.Table[json.RawMessage]
}

func (w *watcher) print(data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.s.print(data)
}

// observe runs under the reactive service's mutation lock.
func (w *watcher) observe(table domain.Table[json.RawMessage]) {
	w.mu.Lock()
	defer w.mu.Unlock()

	changes := diffRows(w.last, table)
	w.last = table
	w.s.metrics.IncNotification(w.table)
	w.s.metrics.SetCacheRows(w.table, table.Len())
	if len(changes) == 0 {
		return
	}
	if err := w.s.print(changes); err != nil {
		w.s.log.Warn("print changes", "error", err)
	}
	if w.hub != nil {
		if err := w.hub.Broadcast(changes); err != nil {
			w.s.log.Warn("broadcast changes", "error", err)
		}
	}
}

func (w *watcher) refreshLoop(ctx context.Context, rts *service.ReactiveTableService[json.RawMessage], interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rts.Refresh(ctx); err != nil && ctx.Err() == nil {
				w.s.log.Warn("refresh failed", "table", w.table, "error", err)
			}
		}
	}
}

// applyLines applies "set KEY JSON" and "delete KEY" lines until r ends or
// ctx is done. A read blocked on r does not hold up the return.
func (w *watcher) applyLines(ctx context.Context, rts *service.ReactiveTableService[json.RawMessage], r io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			w.s.log.Warn("read stdin", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := w.apply(ctx, rts, line); err != nil {
				w.s.log.Warn("mutation failed", "table", w.table, "line", line, "error", err)
			}
		}
	}
}

func (w *watcher) apply(ctx context.Context, rts *service.ReactiveTableService[json.RawMessage], line string) error {
	op, rest, _ := strings.Cut(line, " ")
	key, arg, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if key == "" {
		return fmt.Errorf("missing key")
	}

	var (
		res service.CommitResult[json.RawMessage]
		err error
	)
	switch op {
	case "set":
		val, perr := parseValue(strings.TrimSpace(arg))
		if perr != nil {
			return perr
		}
		res, err = rts.Set(ctx, key, val)
	case "delete", "del":
		res, err = rts.Delete(ctx, key)
	default:
		return fmt.Errorf("unknown operation %q (want set or delete)", op)
	}
	if err != nil {
		return err
	}
	if !res.Applied {
		w.s.log.Warn("mutation not applied", "table", w.table, "key", key, "version", res.Canonical.Version())
	}
	return nil
}

// diffRows lists the rows added, updated or removed between two tables,
// ordered by key.
func diffRows(prev, next domain.Table[json.RawMessage]) []changeView {
	var changes []changeView
	for _, key := range next.Keys() {
		val, _ := next.Get(key)
		old, ok := prev.Get(key)
		switch {
		case !ok:
			changes = append(changes, changeView{Op: "added", Key: key, Value: val, Version: next.Version()})
		case !rawEqual(old, val):
			changes = append(changes, changeView{Op: "updated", Key: key, Value: val, Version: next.Version()})
		}
	}
	for _, key := range prev.Keys() {
		if !next.Has(key) {
			changes = append(changes, changeView{Op: "removed", Key: key, Version: next.Version()})
		}
	}
	slices.SortStableFunc(changes, func(a, b changeView) int {
		return strings.Compare(a.Key, b.Key)
	})
	return changes
}
