package live

import (
	"context"
	"sync"

	"qms/dashboard-service/internal/models"
	"qms/dashboard-service/internal/store"

	"go.uber.org/zap"
)

const (
	UnknownService = models.UnknownService
	UnknownDesk    = models.UnknownDesk
	UnknownTeller  = models.UnknownTeller
)

var sentinels = map[store.RefKind]string{
	store.RefService: UnknownService,
	store.RefDesk:    UnknownDesk,
	store.RefTeller:  UnknownTeller,
}

type NameLookup interface {
	ResolveNames(ctx context.Context, kind store.RefKind, ids []string) (map[string]string, error)
}

// Resolver caches display names for referenced records. A name is looked up
// once and kept for the resolver's lifetime. Ids that do not resolve are
// cached as the sentinel for their kind; failed lookups are not cached.
type Resolver struct {
	lookup NameLookup
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[store.RefKind]map[string]string
}

func NewResolver(lookup NameLookup, logger *zap.Logger) *Resolver {
	cache := make(map[store.RefKind]map[string]string, len(sentinels))
	for kind := range sentinels {
		cache[kind] = make(map[string]string)
	}
	return &Resolver{lookup: lookup, logger: logger, cache: cache}
}

// Resolve looks up every uncached reference in visits, one batched lookup
// per reference kind.
func (r *Resolver) Resolve(ctx context.Context, visits []models.Visit) {
	refs := map[store.RefKind]func(models.Visit) string{
		store.RefService: func(v models.Visit) string { return v.ServiceID },
		store.RefDesk:    func(v models.Visit) string { return v.DeskID },
		store.RefTeller:  func(v models.Visit) string { return v.TellerID },
	}
	for kind, ref := range refs {
		missing := r.uncached(kind, visits, ref)
		if len(missing) == 0 {
			continue
		}
		names, err := r.lookup.ResolveNames(ctx, kind, missing)
		if err != nil {
			r.logger.Warn("name lookup failed", zap.String("kind", string(kind)), zap.Int("ids", len(missing)), zap.Error(err))
			continue
		}
		r.mu.Lock()
		for _, id := range missing {
			if name, ok := names[id]; ok && name != "" {
				r.cache[kind][id] = name
			} else {
				r.cache[kind][id] = sentinels[kind]
			}
		}
		r.mu.Unlock()
	}
}

func (r *Resolver) uncached(kind store.RefKind, visits []models.Visit, ref func(models.Visit) string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var missing []string
	for _, v := range visits {
		id := ref(v)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := r.cache[kind][id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Name returns the cached display name, or the sentinel for kind.
func (r *Resolver) Name(kind store.RefKind, id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.cache[kind][id]; ok {
		return name
	}
	return sentinels[kind]
}
