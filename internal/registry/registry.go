package registry

import (
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const shardCount = 16

// entry is the mutable, single-owner record behind one backend id. It is
// never copied; Registry methods read/write it under its own mutex and
// hand callers a Backend snapshot instead.
type entry struct {
	mu sync.RWMutex

	id              string
	name            string
	baseURL         string
	backendType     string
	priority        int
	discoverySource DiscoverySource
	metadata        map[string]string

	status          Status
	lastHealthCheck time.Time
	lastError       string
	models          []Model
	currentOp       *CurrentOperation

	pendingRequests atomic.Uint32
	totalRequests   atomic.Uint64
	avgLatencyMs    atomic.Uint32

	agent Agent
}

func (e *entry) snapshot() Backend {
	e.mu.RLock()
	defer e.mu.RUnlock()
	md := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		md[k] = v
	}
	models := make([]Model, len(e.models))
	copy(models, e.models)
	var op *CurrentOperation
	if e.currentOp != nil {
		o := *e.currentOp
		op = &o
	}
	return Backend{
		ID:               e.id,
		Name:             e.name,
		BaseURL:          e.baseURL,
		Type:             e.backendType,
		Priority:         e.priority,
		DiscoverySource:  e.discoverySource,
		Metadata:         md,
		Status:           e.status,
		LastHealthCheck:  e.lastHealthCheck,
		LastError:        e.lastError,
		Models:           models,
		PendingRequests:  e.pendingRequests.Load(),
		TotalRequests:    e.totalRequests.Load(),
		AvgLatencyMs:     e.avgLatencyMs.Load(),
		CurrentOperation: op,
	}
}

type shard struct {
	mu       sync.RWMutex
	entries  map[string]*entry
}

// Registry is the Backend Registry of §4.1: a sharded concurrent map of
// backends plus a secondary model→backends index. Sharding bounds writer
// contention on the request hot path without requiring a single global
// lock, satisfying the "lock-free readers, fine-grained writers" design
// note.
type Registry struct {
	shards [shardCount]*shard

	indexMu    sync.RWMutex
	modelIndex map[string]map[string]struct{} // model id -> set of backend ids

	mdnsMu    sync.RWMutex
	byMDNSInstance map[string]string // instance fullname -> backend id
}

func New() *Registry {
	r := &Registry{
		modelIndex:     make(map[string]map[string]struct{}),
		byMDNSInstance: make(map[string]string),
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// AddBackend inserts a new backend with no agent attached.
func (r *Registry) AddBackend(b Backend) error {
	return r.addBackend(b, nil)
}

// AddBackendWithAgent inserts a new backend and its behavioural agent
// atomically.
func (r *Registry) AddBackendWithAgent(b Backend, a Agent) error {
	return r.addBackend(b, a)
}

func (r *Registry) addBackend(b Backend, a Agent) error {
	s := r.shardFor(b.ID)
	s.mu.Lock()
	if _, exists := s.entries[b.ID]; exists {
		s.mu.Unlock()
		return ErrDuplicateBackend
	}
	e := &entry{
		id:              b.ID,
		name:            b.Name,
		baseURL:         b.BaseURL,
		backendType:     b.Type,
		priority:        b.Priority,
		discoverySource: b.DiscoverySource,
		metadata:        copyMeta(b.Metadata),
		status:          b.Status,
		models:          append([]Model(nil), b.Models...),
		agent:           a,
	}
	if e.status == "" {
		e.status = StatusUnknown
	}
	s.entries[b.ID] = e
	s.mu.Unlock()

	r.reconcileModelsLocked(b.ID, nil, e.models)
	if instance, ok := b.Metadata["mdns_instance"]; ok && instance != "" {
		r.mdnsMu.Lock()
		r.byMDNSInstance[instance] = b.ID
		r.mdnsMu.Unlock()
	}
	return nil
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RemoveBackend deletes a backend and its agent, returning the final
// snapshot. Idempotent in effect: a second removal fails with ErrNotFound
// and leaves state unchanged.
func (r *Registry) RemoveBackend(id string) (Backend, error) {
	s := r.shardFor(id)
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return Backend{}, ErrNotFound
	}
	delete(s.entries, id)
	s.mu.Unlock()

	snap := e.snapshot()
	r.reconcileModelsLocked(id, snap.Models, nil)

	r.mdnsMu.Lock()
	for instance, backendID := range r.byMDNSInstance {
		if backendID == id {
			delete(r.byMDNSInstance, instance)
		}
	}
	r.mdnsMu.Unlock()

	return snap, nil
}

// GetBackend returns a snapshot with atomic counters eagerly read.
func (r *Registry) GetBackend(id string) (Backend, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Backend{}, ErrNotFound
	}
	return e.snapshot(), nil
}

func (r *Registry) lookup(id string) (*entry, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// GetAgent returns the agent attached to a backend id, if any.
func (r *Registry) GetAgent(id string) (Agent, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.agent == nil {
		return nil, ErrNotFound
	}
	return e.agent, nil
}

// GetAllBackends returns a snapshot list of every registered backend.
func (r *Registry) GetAllBackends() []Backend {
	out := make([]Backend, 0, 64)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			out = append(out, e.snapshot())
		}
		s.mu.RUnlock()
	}
	return out
}

// GetHealthyBackends returns only backends currently Healthy.
func (r *Registry) GetHealthyBackends() []Backend {
	all := r.GetAllBackends()
	out := all[:0]
	for _, b := range all {
		if b.Status == StatusHealthy {
			out = append(out, b)
		}
	}
	return out
}

// GetBackendsForModel returns every backend currently advertising model id.
func (r *Registry) GetBackendsForModel(modelID string) []Backend {
	r.indexMu.RLock()
	ids := r.modelIndex[modelID]
	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	r.indexMu.RUnlock()

	out := make([]Backend, 0, len(idList))
	for _, id := range idList {
		if b, err := r.GetBackend(id); err == nil {
			out = append(out, b)
		}
	}
	return out
}

// UpdateStatus sets a backend's health status, stamping last_health_check
// and clearing last_error on success.
func (r *Registry) UpdateStatus(id string, status Status, probeErr string) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	e.status = status
	e.lastHealthCheck = time.Now()
	if status == StatusHealthy {
		e.lastError = ""
	} else if probeErr != "" {
		e.lastError = probeErr
	}
	e.mu.Unlock()
	return nil
}

// UpdateModels fully replaces a backend's model list and reconciles the
// secondary index so no dangling entry remains.
func (r *Registry) UpdateModels(id string, models []Model) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	old := e.models
	e.models = append([]Model(nil), models...)
	e.mu.Unlock()

	r.reconcileModelsLocked(id, old, models)
	return nil
}

func (r *Registry) reconcileModelsLocked(backendID string, oldModels, newModels []Model) {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()
	for _, m := range oldModels {
		if set, ok := r.modelIndex[m.ID]; ok {
			delete(set, backendID)
			if len(set) == 0 {
				delete(r.modelIndex, m.ID)
			}
		}
	}
	for _, m := range newModels {
		set, ok := r.modelIndex[m.ID]
		if !ok {
			set = make(map[string]struct{})
			r.modelIndex[m.ID] = set
		}
		set[backendID] = struct{}{}
	}
}

// IncrementPending bumps pending_requests and returns the new value.
func (r *Registry) IncrementPending(id string) (uint32, error) {
	e, ok := r.lookup(id)
	if !ok {
		return 0, ErrNotFound
	}
	return e.pendingRequests.Add(1), nil
}

// DecrementPending decrements pending_requests, saturating at zero.
// Decrementing an already-zero counter logs a warning and reports it via
// the returned bool (true = underflow attempted) rather than panicking.
func (r *Registry) DecrementPending(id string) (value uint32, underflowed bool, err error) {
	e, ok := r.lookup(id)
	if !ok {
		return 0, false, ErrNotFound
	}
	for {
		cur := e.pendingRequests.Load()
		if cur == 0 {
			log.Warn().Str("backend", id).Msg("pending_requests decrement at zero; counter stays at zero")
			return 0, true, nil
		}
		if e.pendingRequests.CompareAndSwap(cur, cur-1) {
			return cur - 1, false, nil
		}
	}
}

// UpdateLatency applies the EMA rule of §3.1: new = sample if old == 0,
// else (sample + 4*old) / 5.
func (r *Registry) UpdateLatency(id string, sampleMs uint32) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}
	for {
		old := e.avgLatencyMs.Load()
		var next uint32
		if old == 0 {
			next = sampleMs
		} else {
			next = (sampleMs + 4*old) / 5
		}
		if e.avgLatencyMs.CompareAndSwap(old, next) {
			e.totalRequests.Add(1)
			return nil
		}
	}
}

// SetMDNSInstance records the mDNS fullname a discovered backend was
// created from, so it can later be found by FindByMDNSInstance.
func (r *Registry) SetMDNSInstance(id, instance string) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	if e.metadata == nil {
		e.metadata = map[string]string{}
	}
	e.metadata["mdns_instance"] = instance
	e.mu.Unlock()

	r.mdnsMu.Lock()
	r.byMDNSInstance[instance] = id
	r.mdnsMu.Unlock()
	return nil
}

// FindByMDNSInstance returns the backend id registered under instance, if any.
func (r *Registry) FindByMDNSInstance(instance string) (string, bool) {
	r.mdnsMu.RLock()
	defer r.mdnsMu.RUnlock()
	id, ok := r.byMDNSInstance[instance]
	return id, ok
}

// HasBackendURL reports whether any backend is already registered at url,
// ignoring a trailing slash.
func (r *Registry) HasBackendURL(url string) bool {
	target := strings.TrimRight(url, "/")
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if strings.TrimRight(e.baseURL, "/") == target {
				s.mu.RUnlock()
				return true
			}
		}
		s.mu.RUnlock()
	}
	return false
}

// SetCurrentOperation attaches or clears a backend's in-flight lifecycle
// operation; the lifecycle reconciler reads this to exclude busy backends.
func (r *Registry) SetCurrentOperation(id string, op *CurrentOperation) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	e.currentOp = op
	e.mu.Unlock()
	return nil
}
