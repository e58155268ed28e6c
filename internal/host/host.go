// Package host implements the multi-account host (C8): it holds N
// independent account contexts, each with its own store, store-update
// actor, mail worker, render pipeline, and render coordinator, and
// dispatches ticks, events, and UI account switches across them, per
// spec.md §4.8.
package host

import (
	"context"
	"fmt"

	"github.com/hkdb/ratmail/internal/logging"
	"github.com/hkdb/ratmail/internal/mailworker"
	"github.com/hkdb/ratmail/internal/render"
	"github.com/hkdb/ratmail/internal/rendercoord"
	"github.com/hkdb/ratmail/internal/store"
	"github.com/hkdb/ratmail/internal/storeupdate"
	"github.com/rs/zerolog"
)

// AccountContext bundles one account's independent runtime: its store,
// the single-writer actor over it, the mail worker facade, the render
// pipeline, and the render coordinator that sits above them.
type AccountContext struct {
	Label string

	Store      *store.Store
	Actor      *storeupdate.Actor
	Worker     *mailworker.Facade
	Pipeline   *render.Pipeline
	Coord      *rendercoord.Coordinator
	AccountID  int64

	cancel context.CancelFunc
}

// Close releases the account's resources: cancels its background
// goroutines and closes its store and mail worker connection.
func (a *AccountContext) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	var err error
	if a.Worker != nil {
		if e := a.Worker.Close(); e != nil {
			err = e
		}
	}
	if a.Store != nil {
		if e := a.Store.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Host holds N independent account contexts and the currently selected
// index into them (spec.md §4.8).
type Host struct {
	accounts []*AccountContext
	selected int
	log      zerolog.Logger
}

// New creates an empty Host. Accounts are added with Add before Start.
func New() *Host {
	return &Host{log: logging.WithComponent("host")}
}

// Add registers one account context with the host. The first account
// added becomes the initial selection.
func (h *Host) Add(ctx *AccountContext) {
	h.accounts = append(h.accounts, ctx)
}

// Start launches every account's store-update actor, mail worker, and
// render pipeline goroutines, deriving a cancellable context per account
// from parent so Close/Shutdown can stop them independently.
func (h *Host) Start(parent context.Context) {
	for _, a := range h.accounts {
		ctx, cancel := context.WithCancel(parent)
		a.cancel = cancel
		if a.Actor != nil {
			go a.Actor.Run(ctx)
		}
		if a.Worker != nil {
			go a.Worker.Run(ctx)
		}
		if a.Pipeline != nil {
			go a.Pipeline.Run(ctx)
		}
	}
}

// Accounts returns every registered account context, in addition order.
func (h *Host) Accounts() []*AccountContext {
	return h.accounts
}

// Labels returns the display label of every account, in addition order.
func (h *Host) Labels() []string {
	labels := make([]string, len(h.accounts))
	for i, a := range h.accounts {
		labels[i] = a.Label
	}
	return labels
}

// Current returns the currently selected account context, or nil if no
// accounts are registered.
func (h *Host) Current() *AccountContext {
	if len(h.accounts) == 0 {
		return nil
	}
	return h.accounts[h.selected]
}

// CurrentIndex returns the index of the selected account.
func (h *Host) CurrentIndex() int {
	return h.selected
}

// SwitchNext advances the selection to the next account, wrapping around.
func (h *Host) SwitchNext() {
	if len(h.accounts) == 0 {
		return
	}
	h.selected = (h.selected + 1) % len(h.accounts)
}

// SwitchPrev moves the selection to the previous account, wrapping around.
func (h *Host) SwitchPrev() {
	if len(h.accounts) == 0 {
		return
	}
	h.selected = (h.selected - 1 + len(h.accounts)) % len(h.accounts)
}

// SwitchTo selects the account at index, returning an error if out of range.
func (h *Host) SwitchTo(index int) error {
	if index < 0 || index >= len(h.accounts) {
		return fmt.Errorf("account index %d out of range (have %d accounts)", index, len(h.accounts))
	}
	h.selected = index
	return nil
}

// DrainAll pumps every account's event and snapshot queues once, invoking
// the supplied callbacks for whatever is immediately available without
// blocking (spec.md §4.8: "pump every account's event and snapshot
// queues").
func (h *Host) DrainAll(onSnapshot func(*AccountContext, *store.Snapshot), onEvent func(*AccountContext, mailworker.Event), onRender func(*AccountContext, render.Event)) {
	for _, a := range h.accounts {
		h.drainAccount(a, onSnapshot, onEvent, onRender)
	}
}

func (h *Host) drainAccount(a *AccountContext, onSnapshot func(*AccountContext, *store.Snapshot), onEvent func(*AccountContext, mailworker.Event), onRender func(*AccountContext, render.Event)) {
	if a.Actor != nil {
		draining := true
		for draining {
			select {
			case snap := <-a.Actor.Snapshots():
				if onSnapshot != nil {
					onSnapshot(a, snap)
				}
			default:
				draining = false
			}
		}
	}
	if a.Worker != nil {
		draining := true
		for draining {
			select {
			case evt := <-a.Worker.Events():
				if onEvent != nil {
					onEvent(a, evt)
				}
			default:
				draining = false
			}
		}
	}
	if a.Pipeline != nil {
		draining := true
		for draining {
			select {
			case evt := <-a.Pipeline.Events():
				if onRender != nil {
					onRender(a, evt)
				}
			default:
				draining = false
			}
		}
	}
}

// TickAll fires per-account housekeeping: nothing in this core needs a
// periodic tick beyond draining queues, so TickAll is DrainAll under a
// name matching spec.md §4.8's "fire per-tick housekeeping" contract,
// kept distinct so a future per-tick concern (e.g. idle-connection
// keepalive) has an obvious home without touching call sites.
func (h *Host) TickAll(onSnapshot func(*AccountContext, *store.Snapshot), onEvent func(*AccountContext, mailworker.Event), onRender func(*AccountContext, render.Event)) {
	h.DrainAll(onSnapshot, onEvent, onRender)
}

// Shutdown cancels every account's background goroutines and closes its
// store and mail worker connection, one account after another, collecting
// the first error encountered. It takes no context and applies no timeout
// of its own.
func (h *Host) Shutdown() error {
	var firstErr error
	for _, a := range h.accounts {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
