// Package registry implements the Backend Registry: a concurrent store of
// backends, their behavioural agents, and a secondary model→backends
// index (§4.1). It persists nothing across restarts by design.
package registry

import (
	"time"

	"github.com/nexusfleet/nexus/internal/agent"
)

// LifecycleOpType names a backend lifecycle operation.
type LifecycleOpType string

const (
	OpLoad    LifecycleOpType = "load"
	OpUnload  LifecycleOpType = "unload"
	OpMigrate LifecycleOpType = "migrate"
)

// OpStatus is the progress state of a CurrentOperation.
type OpStatus string

const (
	OpInProgress OpStatus = "in_progress"
	OpCompleted  OpStatus = "completed"
	OpFailed     OpStatus = "failed"
)

// CurrentOperation describes an in-flight lifecycle action on a backend.
type CurrentOperation struct {
	Type            LifecycleOpType
	Status          OpStatus
	ProgressPercent int
	ETAMs           int64
	SourceBackendID string
	TargetBackendID string
	ModelID         string
}

// Status is a backend's health classification.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
	StatusDraining  Status = "draining"
)

// DiscoverySource records how a backend entered the registry.
type DiscoverySource string

const (
	SourceStatic DiscoverySource = "static"
	SourceMDNS   DiscoverySource = "mdns"
	SourceManual DiscoverySource = "manual"
)

// Model is advertised by a backend (§3.1).
type Model struct {
	ID               string
	Name             string
	ContextLength    int
	SupportsVision   bool
	SupportsTools    bool
	SupportsJSONMode bool
	MaxOutputTokens  int
}

// Backend is an immutable-identity, mutable-state snapshot returned to
// callers. Mutation happens only through Registry operations; a Backend
// value returned by the registry is a copy and safe to retain.
type Backend struct {
	ID              string
	Name            string
	BaseURL         string
	Type            string
	Priority        int
	DiscoverySource DiscoverySource
	Metadata        map[string]string

	Status          Status
	LastHealthCheck time.Time
	LastError       string
	Models          []Model

	PendingRequests  uint32
	TotalRequests    uint64
	AvgLatencyMs     uint32
	CurrentOperation *CurrentOperation
}

// Agent is an alias of the full agent.Agent interface, so callers can
// name the agent type the registry holds as registry.Agent.
type Agent = agent.Agent
