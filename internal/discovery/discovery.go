// Package discovery implements autonomous local-backend discovery over
// mDNS (§4.4): browsing configured service types, translating resolved
// services into registry backends, and evicting ones that vanish after a
// grace period.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"

	"github.com/nexusfleet/nexus/internal/agent"
	"github.com/nexusfleet/nexus/internal/registry"
)

// Config is the §6.4 discovery.* configuration block.
type Config struct {
	ServiceTypes      []string
	Domain            string
	GracePeriod       time.Duration
	CleanupInterval   time.Duration
	BrowseTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ServiceTypes:    []string{"_ollama._tcp", "_llm._tcp"},
		Domain:          "local.",
		GracePeriod:     60 * time.Second,
		CleanupInterval: 10 * time.Second,
	}
}

// Discoverer browses mDNS services and keeps the Backend Registry
// reconciled with what's actually present on the local network.
type Discoverer struct {
	cfg Config
	reg *registry.Registry

	mu             sync.Mutex
	pendingRemoval map[string]time.Time // instance -> removed-at
}

func New(reg *registry.Registry, cfg Config) *Discoverer {
	return &Discoverer{cfg: cfg, reg: reg, pendingRemoval: make(map[string]time.Time)}
}

// Run browses every configured service type and runs the cleanup ticker
// until ctx is cancelled. All service types share one resolver; each gets
// its own entries channel, drained by its own goroutine.
func (d *Discoverer) Run(ctx context.Context) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: create resolver: %w", err)
	}

	var wg sync.WaitGroup
	for _, svc := range d.cfg.ServiceTypes {
		entries := make(chan *zeroconf.ServiceEntry, 16)
		wg.Add(1)
		go func(svc string) {
			defer wg.Done()
			d.consume(ctx, svc, entries)
		}(svc)

		if err := resolver.Browse(ctx, svc, d.cfg.Domain, entries); err != nil {
			log.Error().Err(err).Str("service", svc).Msg("mdns browse failed")
		}
	}

	go d.runCleanup(ctx)

	wg.Wait()
	return nil
}

func (d *Discoverer) consume(ctx context.Context, serviceType string, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if entry == nil {
				continue
			}
			d.handleResolved(serviceType, entry)
		}
	}
}

// handleResolved implements the ServiceResolved path (§4.4 steps 1-6).
// zeroconf does not distinguish resolve from remove events on its entries
// channel the way some mDNS libraries do; an entry with no addresses is
// treated as a removal signal.
func (d *Discoverer) handleResolved(serviceType string, entry *zeroconf.ServiceEntry) {
	instance := fullname(entry, serviceType, d.cfg.Domain)

	if len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		d.handleRemoved(instance)
		return
	}

	host := bestAddress(entry)
	if host == "" {
		d.handleRemoved(instance)
		return
	}

	backendType, apiPath := classify(serviceType, entry.Text)
	url := fmt.Sprintf("http://%s:%d%s", host, entry.Port, apiPath)

	if d.reg.HasBackendURL(url) {
		log.Debug().Str("url", url).Msg("mdns backend shadowed by a static entry")
		return
	}

	d.mu.Lock()
	delete(d.pendingRemoval, instance)
	d.mu.Unlock()

	if existing, ok := d.reg.FindByMDNSInstance(instance); ok {
		if b, err := d.reg.GetBackend(existing); err == nil && b.Status == registry.StatusUnknown {
			// Reappeared before the grace period swept it: nothing else to do.
			_ = b
			return
		}
	}

	cfg := agent.Config{
		ID:       instance,
		Name:     instance,
		BaseURL:  url,
		Metadata: map[string]string{"mdns_instance": instance},
		HTTPClient: agent.NewHTTPClient(),
	}
	a, err := agent.Build(backendType, cfg)
	if err != nil {
		log.Warn().Err(err).Str("instance", instance).Msg("mdns discovered backend rejected by agent factory")
		return
	}

	b := registry.Backend{
		ID:              instance,
		Name:            instance,
		BaseURL:         url,
		Type:            backendType,
		DiscoverySource: registry.SourceMDNS,
		Metadata:        map[string]string{"mdns_instance": instance},
	}
	if err := d.reg.AddBackendWithAgent(b, a); err != nil {
		log.Warn().Err(err).Str("instance", instance).Msg("failed to register mdns backend")
		return
	}
	if err := d.reg.SetMDNSInstance(instance, instance); err != nil {
		log.Warn().Err(err).Str("instance", instance).Msg("failed to record mdns instance mapping")
	}
	log.Info().Str("instance", instance).Str("url", url).Str("type", backendType).Msg("mdns backend discovered")
}

// handleRemoved implements the ServiceRemoved path (§4.4): mark Unknown
// and queue for grace-period eviction.
func (d *Discoverer) handleRemoved(instance string) {
	id, ok := d.reg.FindByMDNSInstance(instance)
	if !ok {
		return
	}
	if err := d.reg.UpdateStatus(id, registry.StatusUnknown, "mdns service removed"); err != nil {
		log.Warn().Err(err).Str("instance", instance).Msg("failed to mark removed mdns backend unknown")
	}
	d.mu.Lock()
	d.pendingRemoval[instance] = time.Now()
	d.mu.Unlock()
	log.Info().Str("instance", instance).Msg("mdns backend removed, pending grace-period eviction")
}

func (d *Discoverer) runCleanup(ctx context.Context) {
	interval := d.cfg.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepOnce()
		}
	}
}

func (d *Discoverer) sweepOnce() {
	grace := d.cfg.GracePeriod
	if grace <= 0 {
		grace = 60 * time.Second
	}
	now := time.Now()

	var expired []string
	d.mu.Lock()
	for instance, removedAt := range d.pendingRemoval {
		if now.Sub(removedAt) >= grace {
			expired = append(expired, instance)
		}
	}
	for _, instance := range expired {
		delete(d.pendingRemoval, instance)
	}
	d.mu.Unlock()

	for _, instance := range expired {
		id, ok := d.reg.FindByMDNSInstance(instance)
		if !ok {
			continue
		}
		if _, err := d.reg.RemoveBackend(id); err != nil {
			log.Warn().Err(err).Str("instance", instance).Msg("failed to evict expired mdns backend")
			continue
		}
		log.Info().Str("instance", instance).Msg("mdns backend evicted after grace period")
	}
}

func fullname(entry *zeroconf.ServiceEntry, serviceType, domain string) string {
	return strings.TrimSuffix(entry.Instance, ".") + "." + strings.TrimSuffix(serviceType, ".") + "." + strings.TrimSuffix(domain, ".")
}

// bestAddress picks the first IPv4 address, else the first IPv6 address
// bracketed for URL use (§4.4 step 2).
func bestAddress(entry *zeroconf.ServiceEntry) string {
	for _, ip := range entry.AddrIPv4 {
		return ip.String()
	}
	for _, ip := range entry.AddrIPv6 {
		return "[" + ip.String() + "]"
	}
	return ""
}

// classify parses TXT records for an explicit type/api_path, falling
// back to service-type inference (§4.4 step 3).
func classify(serviceType string, txt []string) (backendType, apiPath string) {
	fields := parseTXT(txt)

	backendType = fields["type"]
	apiPath, hasPath := fields["api_path"]

	if backendType == "" {
		if strings.Contains(serviceType, "_ollama") {
			backendType = "ollama"
		} else {
			backendType = "generic"
		}
	}

	if !hasPath {
		if backendType == "ollama" {
			apiPath = ""
		} else {
			apiPath = "/v1"
		}
	}
	return backendType, apiPath
}

func parseTXT(txt []string) map[string]string {
	out := make(map[string]string, len(txt))
	for _, kv := range txt {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
