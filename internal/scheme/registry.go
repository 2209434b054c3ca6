// Package scheme tracks the list of questionnaire schemes and which one is
// in focus. The remote service owns the list; the registry holds a
// read-through cache that is replaced on every fetch and invalidated by
// create/delete. The active selection is mirrored to persistent storage so
// it survives a reload.
package scheme

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/NickPeut/BasePlanFactor/internal/api"
	"github.com/NickPeut/BasePlanFactor/internal/session"
	"github.com/NickPeut/BasePlanFactor/internal/store"
)

// ErrEmptyName rejects scheme creation with a blank name before any network
// call is made.
var ErrEmptyName = errors.New("scheme name is empty")

const listCacheKey = "schemes"

// Registry mediates scheme listing, creation, deletion and the active
// selection.
type Registry struct {
	mu       sync.Mutex
	svc      api.Service
	kv       store.KV
	sessions *session.Cache
	list     *gocache.Cache
	active   *int64
	log      *zap.Logger
}

// NewRegistry creates a registry. The persisted active selection, if any, is
// restored immediately; it is validated against the service on the next
// RestoreActive call.
func NewRegistry(svc api.Service, kv store.KV, sessions *session.Cache, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		svc:      svc,
		kv:       kv,
		sessions: sessions,
		list:     gocache.New(5*time.Minute, 10*time.Minute),
		log:      log,
	}
	if v, ok := kv.Get(store.KeyActiveScheme); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.active = &id
		}
	}
	return r
}

// List fetches the scheme list from the service and replaces the local cache.
func (r *Registry) List(ctx context.Context) ([]api.Scheme, error) {
	schemes, err := r.svc.ListSchemes(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.list.Set(listCacheKey, schemes, gocache.DefaultExpiration)
	r.mu.Unlock()

	r.log.Debug("scheme list refreshed", zap.Int("count", len(schemes)))
	return schemes, nil
}

// Cached returns the last fetched list without a network call.
func (r *Registry) Cached() ([]api.Scheme, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.list.Get(listCacheKey); ok {
		return v.([]api.Scheme), true
	}
	return nil, false
}

// Create creates a scheme, resynchronizes the list and activates the new
// scheme. A name that trims to nothing is rejected locally.
func (r *Registry) Create(ctx context.Context, name string) (*api.Scheme, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	created, err := r.svc.CreateScheme(ctx, name)
	if err != nil {
		return nil, err
	}

	// Resync; creation already succeeded, so a failed refresh only logs.
	if _, err := r.List(ctx); err != nil {
		r.log.Warn("failed to refresh schemes after create", zap.Error(err))
	}

	r.SetActive(created.ID)
	return created, nil
}

// Delete removes a scheme and drops its cached session. When the deleted
// scheme was the active one, the replacement comes from a list fetched AFTER
// the delete — never from the pre-delete cache, which could still carry the
// deleted id.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.svc.DeleteScheme(ctx, id); err != nil {
		return err
	}

	r.sessions.Clear(session.ScopeFor(id))

	active, hasActive := r.ActiveScheme()
	wasActive := hasActive && active == id

	schemes, err := r.List(ctx)
	if err != nil {
		// The delete itself succeeded. Without a fresh list no replacement
		// can be trusted, so an active selection pointing at the deleted
		// scheme is cleared.
		if wasActive {
			r.ClearActive()
		}
		r.log.Warn("failed to refresh schemes after delete", zap.Error(err))
		return nil
	}

	if wasActive {
		if len(schemes) > 0 {
			r.SetActive(schemes[0].ID)
		} else {
			r.ClearActive()
		}
	}
	return nil
}

// ActiveScheme reports the scheme currently in focus.
func (r *Registry) ActiveScheme() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return 0, false
	}
	return *r.active, true
}

// SetActive makes id the scheme in focus and mirrors it to storage.
func (r *Registry) SetActive(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = &id
	if err := r.kv.Set(store.KeyActiveScheme, strconv.FormatInt(id, 10)); err != nil {
		r.log.Warn("failed to persist active scheme", zap.Error(err))
	}
}

// ClearActive drops the selection.
func (r *Registry) ClearActive() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = nil
	if err := r.kv.Remove(store.KeyActiveScheme); err != nil {
		r.log.Warn("failed to clear active scheme", zap.Error(err))
	}
}

// RestoreActive reconciles the saved selection against a fresh list on
// startup: the saved scheme when still listed, else the first scheme, else
// none. Returns the scheme to resume, or nil when the list is empty.
func (r *Registry) RestoreActive(ctx context.Context) (*api.Scheme, error) {
	schemes, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(schemes) == 0 {
		r.ClearActive()
		return nil, nil
	}

	if saved, ok := r.ActiveScheme(); ok {
		for i := range schemes {
			if schemes[i].ID == saved {
				return &schemes[i], nil
			}
		}
	}

	r.SetActive(schemes[0].ID)
	return &schemes[0], nil
}
