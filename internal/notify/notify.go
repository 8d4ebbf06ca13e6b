// Package notify runs the background side of the tracker: a cron-driven
// dispatcher that resolves overdue doses and a watcher that turns host zone
// changes into pending transitions.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/TrXuk/open-medtracker-sub000/internal/domain"
	"github.com/TrXuk/open-medtracker-sub000/internal/engine"
	"github.com/TrXuk/open-medtracker-sub000/internal/zoneclock"
)

// Scheduler is the notification hook. The default implementation only logs;
// a real delivery channel can be swapped in behind this interface.
type Scheduler interface {
	Schedule(id string, at time.Time) error
	Cancel(id string) error
}

// LogScheduler logs reminders instead of delivering them.
type LogScheduler struct {
	Log *zap.Logger
}

func (s LogScheduler) Schedule(id string, at time.Time) error {
	s.Log.Info("reminder scheduled", zap.String("dose_id", id), zap.Time("at", at))
	return nil
}

func (s LogScheduler) Cancel(id string) error {
	s.Log.Info("reminder cancelled", zap.String("dose_id", id))
	return nil
}

// Dispatcher periodically generates upcoming doses and schedules reminders
// for pending ones.
type Dispatcher struct {
	Engine    engine.Engine
	Scheduler Scheduler
	Log       *zap.Logger

	cron *cron.Cron
	mu   sync.Mutex
	seen map[string]bool
}

// Start registers the dispatch job on the given cron spec and starts the
// runner. Call Stop to halt it.
func (d *Dispatcher) Start(spec string) error {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Scheduler == nil {
		d.Scheduler = LogScheduler{Log: d.Log}
	}
	d.seen = map[string]bool{}
	d.cron = cron.New()
	if _, err := d.cron.AddFunc(spec, d.run); err != nil {
		return err
	}
	d.cron.Start()
	d.Log.Info("dispatcher started", zap.String("spec", spec))
	return nil
}

func (d *Dispatcher) Stop() {
	if d.cron != nil {
		d.cron.Stop()
	}
}

func (d *Dispatcher) run() {
	ctx := context.Background()
	now := time.Now().UTC()
	civil, err := zoneclock.ToCivil(now, "UTC")
	if err != nil {
		d.Log.Error("dispatch: civil conversion", zap.Error(err))
		return
	}
	today := civil.Date()
	created, err := d.Engine.GenerateDoses(ctx, today, today.AddDays(1))
	if err != nil {
		d.Log.Error("dispatch: generate doses", zap.Error(err))
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range created {
		if rec.ScheduledAt == nil || d.seen[rec.ID] {
			continue
		}
		if err := d.Scheduler.Schedule(rec.ID, *rec.ScheduledAt); err != nil {
			d.Log.Error("dispatch: schedule reminder", zap.String("dose_id", rec.ID), zap.Error(err))
			continue
		}
		d.seen[rec.ID] = true
	}
}

// ZoneWatcher polls a zone source and reports changes as pending
// transitions. CurrentZone is injected so tests and hosts without location
// access can supply their own source.
type ZoneWatcher struct {
	Engine      engine.Engine
	CurrentZone func() (string, error)
	Interval    time.Duration
	Log         *zap.Logger

	lastZone string
	stop     chan struct{}
	done     chan struct{}
}

func (w *ZoneWatcher) Start() {
	if w.Log == nil {
		w.Log = zap.NewNop()
	}
	if w.Interval <= 0 {
		w.Interval = time.Minute
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop()
}

func (w *ZoneWatcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *ZoneWatcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	w.poll()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *ZoneWatcher) poll() {
	zone, err := w.CurrentZone()
	if err != nil {
		w.Log.Warn("zone watcher: read current zone", zap.Error(err))
		return
	}
	canonical, err := zoneclock.Canonical(zone)
	if err != nil {
		w.Log.Warn("zone watcher: unknown zone", zap.String("zone", zone), zap.Error(err))
		return
	}
	if w.lastZone == "" {
		w.lastZone = canonical
		return
	}
	if canonical == w.lastZone {
		return
	}
	p, err := w.Engine.DetectTransition(context.Background(), w.lastZone, canonical, time.Now().UTC(), domain.DetectionAutomatic)
	if err != nil {
		w.Log.Error("zone watcher: detect transition", zap.Error(err))
		return
	}
	if p != nil {
		w.Log.Info("zone change detected",
			zap.String("previous_zone", p.PreviousZone),
			zap.String("new_zone", p.NewZone))
	}
	w.lastZone = canonical
}
