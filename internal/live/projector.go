package live

import (
	"context"
	"strings"
	"sync"
	"time"

	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
)

const DefaultInterval = 60 * time.Second

// Entry is a visit joined with display names and its elapsed time.
type Entry struct {
	models.Visit
	ServiceName    string `json:"service_name"`
	DeskName       string `json:"desk_name"`
	TellerName     string `json:"teller_name"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
}

type Projection struct {
	Status      string    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []Entry   `json:"entries"`
}

// Filter narrows a projection to one desk and/or one service name.
type Filter struct {
	DeskID      string
	ServiceName string
}

func (f Filter) Empty() bool {
	return f.DeskID == "" && f.ServiceName == ""
}

func (p Projection) Filter(f Filter) Projection {
	if f.Empty() {
		return p
	}
	out := Projection{Status: p.Status, GeneratedAt: p.GeneratedAt, Entries: []Entry{}}
	for _, e := range p.Entries {
		if f.DeskID != "" && e.DeskID != f.DeskID {
			continue
		}
		if f.ServiceName != "" && !strings.EqualFold(e.ServiceName, f.ServiceName) {
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	return out
}

// ElapsedMinutes is the number of whole minutes from anchor to now. A zero
// anchor or one in the future gives 0.
func ElapsedMinutes(anchor, now time.Time) int {
	if anchor.IsZero() || now.Before(anchor) {
		return 0
	}
	return int(now.Sub(anchor) / time.Minute)
}

type Options struct {
	Statuses []string
	Interval time.Duration
	Clock    func() time.Time
	Logger   *zap.Logger
	// OnUpdate receives every new projection, one call at a time. It may
	// call Current.
	OnUpdate func(Projection)
}

// Projector keeps a live projection per watched status. Record sets arrive
// from the feed; a ticker refreshes elapsed times in between. Each
// projection is rebuilt from the latest record set, never patched.
type Projector struct {
	feed     Feed
	resolver *Resolver
	statuses []string
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	onUpdate func(Projection)

	// pubMu serializes rebuild and publish.
	pubMu sync.Mutex

	mu          sync.RWMutex
	latest      map[string][]models.Visit
	projections map[string]Projection
	lastStatus  map[string]string
	members     map[string]map[string]bool
}

func NewProjector(feed Feed, resolver *Resolver, opts Options) *Projector {
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = []string{models.StatusPending, models.StatusWaiting, models.StatusServing}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		feed:        feed,
		resolver:    resolver,
		statuses:    statuses,
		interval:    interval,
		now:         clock,
		logger:      logger,
		onUpdate:    opts.OnUpdate,
		latest:      make(map[string][]models.Visit),
		projections: make(map[string]Projection),
		lastStatus:  make(map[string]string),
		members:     make(map[string]map[string]bool),
	}
}

// Run subscribes to every watched status and refreshes on the interval
// until ctx is done. All subscriptions are cancelled before it returns.
func (p *Projector) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, status := range p.statuses {
		updates, unsubscribe, err := p.feed.Subscribe(ctx, status)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func(status string) {
			defer wg.Done()
			defer unsubscribe()
			for visits := range updates {
				p.Apply(ctx, status, visits)
			}
		}(status)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Apply replaces the record set for status and publishes a new projection.
func (p *Projector) Apply(ctx context.Context, status string, visits []models.Visit) {
	p.resolver.Resolve(ctx, visits)

	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	p.mu.Lock()
	p.observe(status, visits)
	p.latest[status] = visits
	p.pruneObserved()
	proj := p.project(status)
	p.projections[status] = proj
	p.mu.Unlock()

	p.publish(proj)
}

// Refresh recomputes every projection from the latest record sets.
func (p *Projector) Refresh(ctx context.Context) {
	p.mu.RLock()
	sets := make(map[string][]models.Visit, len(p.latest))
	for status, visits := range p.latest {
		sets[status] = visits
	}
	p.mu.RUnlock()
	for _, visits := range sets {
		p.resolver.Resolve(ctx, visits)
	}

	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	var fresh []Projection
	p.mu.Lock()
	for _, status := range p.statuses {
		if _, ok := p.latest[status]; !ok {
			continue
		}
		proj := p.project(status)
		p.projections[status] = proj
		fresh = append(fresh, proj)
	}
	p.mu.Unlock()

	for _, proj := range fresh {
		p.publish(proj)
	}
}

func (p *Projector) Current(status string) (Projection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	proj, ok := p.projections[status]
	return proj, ok
}

func (p *Projector) Statuses() []string {
	return append([]string(nil), p.statuses...)
}

func (p *Projector) project(status string) Projection {
	now := p.now()
	visits := p.latest[status]
	entries := make([]Entry, 0, len(visits))
	for _, v := range visits {
		elapsed := 0
		if anchor, ok := v.Anchor(); ok {
			elapsed = ElapsedMinutes(anchor, now)
		}
		entries = append(entries, Entry{
			Visit:          v,
			ServiceName:    p.resolver.Name(store.RefService, v.ServiceID),
			DeskName:       p.resolver.Name(store.RefDesk, v.DeskID),
			TellerName:     p.resolver.Name(store.RefTeller, v.TellerID),
			ElapsedMinutes: elapsed,
		})
	}
	return Projection{Status: status, GeneratedAt: now, Entries: entries}
}

// observe logs visits that enter a status set behind the furthest status
// they were last seen entering. The first set for a status is a baseline,
// and a visit still listed in a set it was already in is a stale read,
// not a move.
func (p *Projector) observe(status string, visits []models.Visit) {
	prev, applied := p.members[status]
	next := make(map[string]bool, len(visits))
	for _, v := range visits {
		next[v.VisitID] = true
		if applied && prev[v.VisitID] {
			continue
		}
		last, ok := p.lastStatus[v.VisitID]
		if ok && !models.ValidProgression(last, status) {
			if !applied {
				continue
			}
			p.logger.Warn("visit status moved backwards",
				zap.String("visit_id", v.VisitID),
				zap.String("from", last),
				zap.String("to", status))
		}
		p.lastStatus[v.VisitID] = status
	}
	p.members[status] = next
}

// pruneObserved forgets visits no longer in any watched record set.
func (p *Projector) pruneObserved() {
	live := make(map[string]bool, len(p.lastStatus))
	for _, visits := range p.latest {
		for _, v := range visits {
			live[v.VisitID] = true
		}
	}
	for id := range p.lastStatus {
		if !live[id] {
			delete(p.lastStatus, id)
		}
	}
}

func (p *Projector) publish(proj Projection) {
	if p.onUpdate != nil {
		p.onUpdate(proj)
	}
}
