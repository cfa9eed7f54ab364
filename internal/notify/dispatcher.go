// Package notify turns the change masks of an address space into notifications.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
)

var (
	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mtua",
		Name:      "notifications_total",
		Help:      "Node change notifications delivered, by change mask.",
	}, []string{"mask"})

	sweeps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mtua",
		Name:      "dispatch_sweeps_total",
		Help:      "Change mask sweeps over the address space.",
	})
)

// Dispatcher periodically clears the change masks of its root nodes and hands every
// reported change to its observers. Observers run with the context locked and must not
// block.
type Dispatcher struct {
	ctx      *addressspace.Context
	interval time.Duration
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	roots     []*addressspace.Node
	observers []addressspace.Observer
	delivered int
}

// NewDispatcher installs the dispatcher as the observer of ctx.
func NewDispatcher(ctx *addressspace.Context, interval time.Duration, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Dispatcher{ctx: ctx, interval: interval, logger: logger}
	ctx.Observer = d
	return d
}

// Subscribe adds an observer.
func (d *Dispatcher) Subscribe(o addressspace.Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// AddRoot adds a tree to sweep.
func (d *Dispatcher) AddRoot(n *addressspace.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roots = append(d.roots, n)
}

func (d *Dispatcher) Roots() []*addressspace.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*addressspace.Node(nil), d.roots...)
}

// OnNodeChanged implements addressspace.Observer.
func (d *Dispatcher) OnNodeChanged(ctx *addressspace.Context, node *addressspace.Node, mask addressspace.ChangeMask) {
	notifications.WithLabelValues(mask.String()).Inc()
	d.mu.Lock()
	observers := d.observers
	d.delivered++
	d.mu.Unlock()
	for _, o := range observers {
		o.OnNodeChanged(ctx, node, mask)
	}
}

// Sweep clears every root once and returns the number of notifications it produced.
func (d *Dispatcher) Sweep() int {
	roots := d.Roots()
	d.mu.Lock()
	before := d.delivered
	d.mu.Unlock()

	d.ctx.Lock()
	for _, root := range roots {
		root.ClearChangeMasks(d.ctx, true)
	}
	d.ctx.Unlock()
	sweeps.Inc()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered - before
}

// Run sweeps every interval until ctx is done, then sweeps once more.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.Sweep()
			return ctx.Err()
		case <-ticker.C:
			if n := d.Sweep(); n > 0 {
				d.logger.Debugw("changes dispatched", "notifications", n)
			}
		}
	}
}
