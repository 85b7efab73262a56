// services/hal/internal/worker/measure_worker.go
package worker

import (
	"context"
	"errors"
	"time"

	"ads111x-go/services/hal/internal/halcore"
	"ads111x-go/services/hal/internal/util"
)

// MeasureWorker drives split-phase adaptors: Trigger on request, Collect
// once the adaptor's hint has elapsed, retrying ErrNotReady with a fixed
// backoff. All adaptor calls happen on the worker goroutine, so adaptors
// sharing one bus are serialised.
type MeasureWorker struct {
	cfg  halcore.WorkerConfig
	reqQ chan halcore.MeasureReq
	sink chan<- halcore.Result // fan-in sink owned by caller

	pending  map[string]*collectItem
	want     map[string]bool
	collects []*collectItem
	timer    *time.Timer
}

type collectItem struct {
	id      string
	adaptor halcore.Adaptor
	due     time.Time
	retries int
}

func New(cfg halcore.WorkerConfig, sink chan<- halcore.Result) *MeasureWorker {
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 100 * time.Millisecond
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 250 * time.Millisecond
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 50
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 16
	}
	return &MeasureWorker{
		cfg:     cfg,
		reqQ:    make(chan halcore.MeasureReq, cfg.InputQueueSize),
		sink:    sink,
		pending: map[string]*collectItem{},
		want:    map[string]bool{},
		timer:   time.NewTimer(time.Hour),
	}
}

// Submit queues a request without blocking. A prio request waits briefly
// for queue space.
func (w *MeasureWorker) Submit(req halcore.MeasureReq) bool {
	select {
	case w.reqQ <- req:
		return true
	default:
		if req.Prio {
			select {
			case w.reqQ <- req:
				return true
			case <-time.After(5 * time.Millisecond):
			}
		}
		return false
	}
}

func (w *MeasureWorker) Start(ctx context.Context) {
	if !w.timer.Stop() {
		util.DrainTimer(w.timer)
	}
	go w.run(ctx)
}

func (w *MeasureWorker) run(ctx context.Context) {
	for {
		next := w.minDue()
		if next.IsZero() {
			util.ResetTimer(w.timer, time.Hour)
		} else {
			util.ResetTimer(w.timer, time.Until(next))
		}
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqQ:
			if _, ok := w.pending[req.ID]; ok {
				// Already in flight; a prio request re-arms after the outcome.
				if req.Prio {
					w.want[req.ID] = true
				}
				continue
			}
			if it, ok := w.trigger(ctx, req.ID, req.Adaptor); ok {
				w.collects = append(w.collects, it)
			}
		case <-w.timer.C:
			w.collectDue(ctx)
		}
	}
}

// trigger starts a cycle; a failure is emitted and reported as !ok.
func (w *MeasureWorker) trigger(ctx context.Context, id string, ad halcore.Adaptor) (*collectItem, bool) {
	tctx, cancel := context.WithTimeout(ctx, w.cfg.TriggerTimeout)
	after, err := ad.Trigger(tctx)
	cancel()
	if err != nil {
		w.emit(ctx, halcore.Result{ID: id, Err: err})
		return nil, false
	}
	it := &collectItem{id: id, adaptor: ad, due: time.Now().Add(after)}
	w.pending[id] = it
	return it, true
}

func (w *MeasureWorker) collectDue(ctx context.Context) {
	now := time.Now()
	var keep []*collectItem
	for _, it := range w.collects {
		if now.Before(it.due) {
			keep = append(keep, it)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, w.cfg.CollectTimeout)
		s, err := it.adaptor.Collect(cctx)
		cancel()
		if errors.Is(err, halcore.ErrNotReady) && it.retries < w.cfg.MaxRetries {
			it.retries++
			it.due = now.Add(w.cfg.RetryBackoff)
			keep = append(keep, it)
			continue
		}
		delete(w.pending, it.id)
		w.emit(ctx, halcore.Result{ID: it.id, Sample: s, Err: err, Retries: it.retries})
		if w.want[it.id] {
			delete(w.want, it.id)
			if next, ok := w.trigger(ctx, it.id, it.adaptor); ok {
				keep = append(keep, next)
			}
		}
	}
	w.collects = keep
}

func (w *MeasureWorker) emit(ctx context.Context, r halcore.Result) {
	select {
	case w.sink <- r:
	case <-ctx.Done():
	}
}

func (w *MeasureWorker) minDue() time.Time {
	var min time.Time
	for _, it := range w.collects {
		if min.IsZero() || it.due.Before(min) {
			min = it.due
		}
	}
	return min
}
