package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/bus"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/config"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/notify"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

// Engine owns the relationship graph: tier capacity accounting, the
// connection state machine, invitation reconciliation, content
// visibility, notification scheduling, and sunset nudges.
type Engine struct {
	DB        *store.DB
	Bus       *bus.Bus
	Notifier  notify.Notifier
	Directory Directory

	caps        Caps
	thresholds  map[Tier]int
	actions     map[Tier]string
	cooldown    time.Duration
	batchWindow time.Duration

	cron *cron.Cron
}

// New creates an Engine over the store with policy from config. The
// bus, notifier, and directory default to in-process implementations
// and can be swapped with the Set* methods.
func New(db *store.DB, cfg config.Config) *Engine {
	e := &Engine{
		DB:          db,
		Bus:         bus.New(),
		Notifier:    notify.LogNotifier{},
		caps:        capsFromConfig(cfg.Tiers.Caps),
		thresholds:  thresholdsFromConfig(cfg.Nudges.Thresholds),
		actions:     defaultNudgeActions,
		cooldown:    time.Duration(cfg.Nudges.CooldownDays) * 24 * time.Hour,
		batchWindow: time.Duration(cfg.Notifications.BatchWindowMinutes) * time.Minute,
	}
	e.Directory = storeDirectory{db: db}
	return e
}

// SetNotifier configures the outbound notification transport.
func (e *Engine) SetNotifier(n notify.Notifier) {
	e.Notifier = n
}

// SetDirectory configures the contact-directory collaborator.
func (e *Engine) SetDirectory(d Directory) {
	e.Directory = d
}

// StartNudgeCycle schedules the periodic nudge recompute. The cycle
// publishes nudge.due events for every owner with due nudges.
func (e *Engine) StartNudgeCycle(spec string) error {
	if e.cron != nil {
		return fmt.Errorf("nudge cycle already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, e.runNudgeCycle); err != nil {
		return fmt.Errorf("schedule nudge cycle %q: %w", spec, err)
	}
	c.Start()
	e.cron = c
	return nil
}

// Stop shuts down the engine's background jobs.
func (e *Engine) Stop() {
	if e.cron != nil {
		e.cron.Stop()
		e.cron = nil
	}
}

func (e *Engine) runNudgeCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	people, err := e.DB.ListPeople(ctx)
	if err != nil {
		log.Printf("nudge cycle: list people: %v", err)
		return
	}

	now := time.Now().UTC()
	due := 0
	for _, p := range people {
		nudges, err := e.ComputeNudges(ctx, p.ID, now)
		if err != nil {
			log.Printf("nudge cycle: compute for %s: %v", p.ID, err)
			continue
		}
		for _, n := range nudges {
			e.Bus.Publish(bus.Event{
				Topic:   bus.TopicNudgeDue,
				Subject: n.ID,
				Actors:  []string{p.ID},
				At:      now,
			})
			due++
		}
	}
	if due > 0 {
		log.Printf("nudge cycle: %d nudges due", due)
	}
}

// dispatch sends a notification through the notifier collaborator,
// fire-and-forget. Disabled-priority notifications are dropped here so
// no transport ever sees them.
func (e *Engine) dispatch(n notify.Notification) {
	if n.Priority == notify.PriorityDisabled {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Notifier.Deliver(ctx, n); err != nil {
			log.Printf("notify: deliver %s to %s: %v", n.Kind, n.RecipientID, err)
		}
	}()
}

func newID() string {
	return uuid.NewString()
}
