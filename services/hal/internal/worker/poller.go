package worker

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	"ads111x-go/services/hal/internal/halcore"
)

// Poller turns per-adaptor sample periods into MeasureReqs.
type Poller struct {
	mu     sync.Mutex
	wake   chan struct{}
	items  map[string]*pollItem
	h      pollHeap
	rand   *rand.Rand
	submit func(halcore.MeasureReq) bool
}

type pollItem struct {
	id      string
	adaptor halcore.Adaptor
	due     int64
	every   time.Duration
	jitter  time.Duration
	index   int
}

type pollHeap []*pollItem

func (h pollHeap) Len() int           { return len(h) }
func (h pollHeap) Less(i, j int) bool { return h[i].due < h[j].due }
func (h pollHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *pollHeap) Push(x any)        { it := x.(*pollItem); it.index = len(*h); *h = append(*h, it) }
func (h *pollHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	it.index = -1
	*h = old[:n-1]
	return it
}

// NewPoller hands due requests to submit, usually MeasureWorker.Submit.
// A request the sink refuses is dropped; the next period retries.
func NewPoller(submit func(halcore.MeasureReq) bool) *Poller {
	return &Poller{
		wake:   make(chan struct{}, 1),
		items:  make(map[string]*pollItem),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		submit: submit,
	}
}

// Upsert adds or updates the schedule for ad. The first fire is immediate;
// later fires follow every plus a random jitter in [0..jitter].
func (p *Poller) Upsert(ad halcore.Adaptor, every, jitter time.Duration) {
	if every <= 0 || ad == nil {
		return
	}
	if jitter < 0 {
		jitter = 0
	}
	id := ad.ID()
	now := time.Now().UnixNano()
	p.mu.Lock()
	if it := p.items[id]; it == nil {
		it = &pollItem{id: id, adaptor: ad, due: now, every: every, jitter: jitter, index: -1}
		p.items[id] = it
		heap.Push(&p.h, it)
	} else {
		it.adaptor = ad
		it.every = every
		it.jitter = jitter
		it.due = now
		heap.Fix(&p.h, it.index)
	}
	p.mu.Unlock()
	p.wakeup()
}

func (p *Poller) Stop(id string) {
	p.mu.Lock()
	if it := p.items[id]; it != nil {
		heap.Remove(&p.h, it.index)
		delete(p.items, id)
	}
	p.mu.Unlock()
	p.wakeup()
}

// Len reports the number of scheduled adaptors.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := p.nextWait()
		if wait < 0 {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}
		if wait == 0 {
			if req, ok := p.pop(); ok {
				p.submit(req)
			}
			continue
		}

		timer.Reset(time.Duration(wait))
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}
}

// pop re-arms the earliest due item and returns its request.
func (p *Poller) pop() (halcore.MeasureReq, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.h) == 0 || p.h[0].due > time.Now().UnixNano() {
		return halcore.MeasureReq{}, false
	}
	it := p.h[0]
	it.due = time.Now().Add(p.jittered(it.every, it.jitter)).UnixNano()
	heap.Fix(&p.h, 0)
	return halcore.MeasureReq{ID: it.id, Adaptor: it.adaptor}, true
}

func (p *Poller) nextWait() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.h) == 0 {
		return -1
	}
	now := time.Now().UnixNano()
	if d := p.h[0].due; d > now {
		return d - now
	}
	return 0
}

func (p *Poller) wakeup() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) jittered(interval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return interval
	}
	return interval + time.Duration(p.rand.Int63n(int64(jitter)+1))
}
