package signals

import (
	"context"
	"errors"
	"time"

	"github.com/amp-labs/statekeeper/logger"
	"github.com/rs/dnscache"
)

// ReachableSignal is the name of the signal exposed by Reachability.
const ReachableSignal = "reachable"

const (
	defaultProbeInterval = 30 * time.Second
	defaultCacheRefresh  = 5 * time.Minute
)

// ErrNoProbeHost is returned when a prober is started without a host.
var ErrNoProbeHost = errors.New("reachability probe host is required")

// Reachability tracks network reachability.
type Reachability struct {
	reachable *Bool
}

// NewReachability returns a provider with the given initial value.
func NewReachability(reachable bool) *Reachability {
	return &Reachability{
		reachable: NewBool(ReachableSignal, reachable),
	}
}

// Reachable returns the signal that reads true while the network is reachable.
func (r *Reachability) Reachable() Signal {
	return r.reachable
}

// IsReachable reports the last known value.
func (r *Reachability) IsReachable() bool {
	return r.reachable.Value()
}

// SetReachable records a new value and notifies dependants if it changed.
func (r *Reachability) SetReachable(reachable bool) {
	r.reachable.Set(reachable)
}

// Resolver is the subset of *dnscache.Resolver used by Prober.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

var _ Resolver = (*dnscache.Resolver)(nil)

// Prober polls DNS resolution of a host and feeds the result into a Reachability.
type Prober struct {
	target   *Reachability
	host     string
	interval time.Duration
	refresh  time.Duration
	resolver Resolver
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		p.interval = d
	}
}

// WithCacheRefresh sets how often Run refreshes a dnscache.Resolver. Probes
// between refreshes are answered from the cache.
func WithCacheRefresh(d time.Duration) ProberOption {
	return func(p *Prober) {
		p.refresh = d
	}
}

// WithResolver replaces the default caching resolver.
func WithResolver(r Resolver) ProberOption {
	return func(p *Prober) {
		p.resolver = r
	}
}

// NewProber returns a prober for host. By default it resolves through a
// dnscache.Resolver refreshed every 5 minutes and polls every 30 seconds.
func NewProber(target *Reachability, host string, opts ...ProberOption) *Prober {
	p := &Prober{
		target:   target,
		host:     host,
		interval: defaultProbeInterval,
		refresh:  defaultCacheRefresh,
		resolver: &dnscache.Resolver{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Probe performs a single lookup and updates the target.
func (p *Prober) Probe(ctx context.Context) bool {
	addrs, err := p.resolver.LookupHost(ctx, p.host)
	reachable := err == nil && len(addrs) > 0

	if !reachable && p.target.IsReachable() {
		logger.Get(ctx).Info("network became unreachable", "host", p.host, "error", err)
	}

	p.target.SetReachable(reachable)

	return reachable
}

// Run probes immediately and then on every interval until ctx is done. A
// dnscache.Resolver is refreshed on its own cadence, and each refresh is
// followed by a probe so that a changed answer is seen right away.
func (p *Prober) Run(ctx context.Context) error {
	if p.host == "" {
		return ErrNoProbeHost
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var refreshC <-chan time.Time

	cache, cached := p.resolver.(*dnscache.Resolver)
	if cached && p.refresh > 0 {
		refresh := time.NewTicker(p.refresh)
		defer refresh.Stop()

		refreshC = refresh.C
	}

	for {
		p.Probe(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-refreshC:
			cache.Refresh(true)
		}
	}
}
