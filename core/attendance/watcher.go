package attendance

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/darasahq/darasa/core"
)

// DefaultDebounceDelay is how long snapshot bursts are allowed to settle
// before one reconciliation pass runs over them.
const DefaultDebounceDelay = 500 * time.Millisecond

var (
	errWatcherClosed   = errors.New("watcher is closed")
	errAlreadyWatching = errors.New("watcher already has an active subscription")
)

type (
	WatcherOptions struct {
		Subject       Subject
		DebounceDelay time.Duration // defaults to config / DefaultDebounceDelay
		SessionHours  int           // defaults to config
	}

	monthlyObserver struct {
		id int
		fn func(MonthlySummary)
	}

	weeklyObserver struct {
		id int
		fn func([]DailyFact)
	}

	// notice is one delivery unit: the views of a reconciliation pass (or a
	// cached view on subscribe) addressed to a fixed observer set.
	notice struct {
		monthly *MonthlySummary
		weekly  []DailyFact
		monObs  []monthlyObserver
		wkObs   []weeklyObserver
	}

	// Watcher owns one live subject subscription: the feed handle, the
	// debounced snapshot queue, the reconciler and the observer registry.
	// One instance per active subscription context; retargeting to another
	// subject means Close() and construct a new Watcher. There is no hidden
	// package-level state.
	Watcher struct {
		feed     Feed
		rec      *Reconciler
		logger   core.Logger
		debounce time.Duration

		mu        sync.Mutex
		sub       Subscription
		queue     []Snapshot
		timer     *time.Timer
		inFlight  bool
		lastHash  [sha256.Size]byte
		hasLast   bool
		nextObsID int
		monObs    []monthlyObserver
		wkObs     []weeklyObserver
		notices   []notice
		notifying bool
		cached    Views
		closed    bool
	}
)

func NewWatcher(logger core.Logger, feed Feed, opts WatcherOptions) *Watcher {
	delay := opts.DebounceDelay
	if delay <= 0 {
		delay = core.Conf.Attendance.DebounceDelay
	}
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	hours := opts.SessionHours
	if hours <= 0 {
		hours = core.Conf.Attendance.SessionHours
	}
	return &Watcher{
		feed:     feed,
		rec:      NewReconciler(opts.Subject, hours),
		logger:   logger,
		debounce: delay,
	}
}

// Watch subscribes to the change feed and starts consuming snapshots.
// Read-path subscriptions are not auto-retried; if the feed fails the caller
// must construct a new Watcher and re-subscribe.
func (w *Watcher) Watch(ctx context.Context, q Query) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errWatcherClosed
	}
	if w.sub != nil {
		w.mu.Unlock()
		return errAlreadyWatching
	}
	w.mu.Unlock()

	sub, err := w.feed.Subscribe(ctx, q)
	if err != nil {
		return core.NewUpstreamError("feed.subscribe", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = sub.Close()
		return errWatcherClosed
	}
	w.sub = sub
	w.mu.Unlock()

	go func() {
		for snap := range sub.Snapshots() {
			w.enqueue(snap)
		}
	}()
	return nil
}

// SubscribeMonthly registers a callback for monthly view updates and returns
// its unsubscribe function. A cached view, if any, is delivered
// asynchronously before any future live update.
func (w *Watcher) SubscribeMonthly(fn func(MonthlySummary)) (unsubscribe func()) {
	w.mu.Lock()
	w.nextObsID++
	obs := monthlyObserver{id: w.nextObsID, fn: fn}
	w.monObs = append(w.monObs, obs)
	if w.cached.Monthly != nil {
		view := *w.cached.Monthly
		w.enqueueNoticeLocked(notice{monthly: &view, monObs: []monthlyObserver{obs}})
	}
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, o := range w.monObs {
			if o.id == obs.id {
				w.monObs = append(w.monObs[:i], w.monObs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeWeekly registers a callback for weekly view updates; same
// semantics as SubscribeMonthly.
func (w *Watcher) SubscribeWeekly(fn func([]DailyFact)) (unsubscribe func()) {
	w.mu.Lock()
	w.nextObsID++
	obs := weeklyObserver{id: w.nextObsID, fn: fn}
	w.wkObs = append(w.wkObs, obs)
	if w.cached.Weekly != nil {
		w.enqueueNoticeLocked(notice{weekly: w.cached.Weekly, wkObs: []weeklyObserver{obs}})
	}
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, o := range w.wkObs {
			if o.id == obs.id {
				w.wkObs = append(w.wkObs[:i], w.wkObs[i+1:]...)
				return
			}
		}
	}
}

// Cached returns the views computed by the most recent reconciliation pass.
func (w *Watcher) Cached() Views {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cached
}

// Close cancels the pending debounce timer, drops queued snapshots, removes
// all observers and closes the feed subscription. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.queue = nil
	w.notices = nil
	w.monObs, w.wkObs = nil, nil
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}

func (w *Watcher) enqueue(snap Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.queue = append(w.queue, snap)
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
}

// flush drains the queue in arrival order. At most one pass runs at a time;
// snapshots arriving mid-pass are picked up by the running drain loop, so a
// timer firing during a pass may safely do nothing.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed || w.inFlight {
		w.mu.Unlock()
		return
	}
	w.inFlight = true
	for len(w.queue) > 0 && !w.closed {
		snap := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
		w.process(snap)
		w.mu.Lock()
	}
	w.inFlight = false
	w.mu.Unlock()
}

// process reconciles one snapshot. Only the in-flight drain loop calls this,
// so lastHash needs no extra guarding.
func (w *Watcher) process(snap Snapshot) {
	h := snap.Hash()
	if w.hasLast && h == w.lastHash {
		return // byte-identical to the last processed snapshot
	}
	w.lastHash, w.hasLast = h, true

	views, monthlyChanged, weeklyChanged := w.rec.Reconcile(snap, NowFunc())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	var n notice
	if monthlyChanged {
		w.cached.Monthly = views.Monthly
		view := *views.Monthly
		n.monthly = &view
		n.monObs = append([]monthlyObserver(nil), w.monObs...)
	}
	if weeklyChanged {
		w.cached.Weekly = views.Weekly
		n.weekly = views.Weekly
		n.wkObs = append([]weeklyObserver(nil), w.wkObs...)
	}
	if n.monthly != nil || n.weekly != nil {
		w.enqueueNoticeLocked(n)
	}
}

// enqueueNoticeLocked appends a delivery unit and ensures the single
// notifier goroutine is running. One notifier delivering in enqueue order
// keeps observers from ever seeing an older view after a newer one; the
// processing pass itself never waits on callbacks. Caller must hold w.mu.
func (w *Watcher) enqueueNoticeLocked(n notice) {
	w.notices = append(w.notices, n)
	if !w.notifying {
		w.notifying = true
		go w.notifyLoop()
	}
}

// notifyLoop drains the notice queue in order, same drain idiom as flush.
func (w *Watcher) notifyLoop() {
	w.mu.Lock()
	for len(w.notices) > 0 {
		n := w.notices[0]
		w.notices = w.notices[1:]
		w.mu.Unlock()
		if n.monthly != nil {
			for _, o := range n.monObs {
				w.deliverMonthly(o, *n.monthly)
			}
		}
		if n.weekly != nil {
			for _, o := range n.wkObs {
				w.deliverWeekly(o, n.weekly)
			}
		}
		w.mu.Lock()
	}
	w.notifying = false
	w.mu.Unlock()
}

func (w *Watcher) deliverMonthly(obs monthlyObserver, view MonthlySummary) {
	if !w.monthlyAlive(obs.id) {
		return
	}
	defer w.recoverObserver()
	obs.fn(view)
}

func (w *Watcher) deliverWeekly(obs weeklyObserver, view []DailyFact) {
	if !w.weeklyAlive(obs.id) {
		return
	}
	defer w.recoverObserver()
	obs.fn(view)
}

// recoverObserver keeps one panicking callback from starving the rest.
func (w *Watcher) recoverObserver() {
	if r := recover(); r != nil {
		w.logger.Error("attendance: observer callback panicked", r)
	}
}

func (w *Watcher) monthlyAlive(id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range w.monObs {
		if o.id == id {
			return true
		}
	}
	return false
}

func (w *Watcher) weeklyAlive(id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, o := range w.wkObs {
		if o.id == id {
			return true
		}
	}
	return false
}
