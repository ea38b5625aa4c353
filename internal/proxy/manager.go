package proxy

import (
	"math/rand"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"media-pipeline/pkg/models"
)

// Selection strategies for the shared endpoint pool
const (
	SelectionRoundRobin = "round_robin"
	SelectionRandom     = "random"
)

// Manager picks outbound proxies for download engines. Domain routing
// takes precedence: a domain mapped to a dedicated endpoint list only
// ever uses those endpoints. Everything else rotates over the shared
// pool.
type Manager struct {
	cfg    *models.Config
	logger zerolog.Logger

	mu      sync.Mutex
	nextIdx map[string]int
}

// NewManager creates a proxy manager from configuration
func NewManager(cfg *models.Config) *Manager {
	return &Manager{
		cfg:     cfg,
		logger:  zerolog.New(os.Stdout).With().Timestamp().Str("component", "proxy_manager").Logger(),
		nextIdx: make(map[string]int),
	}
}

// routedEndpoints returns the dedicated endpoint list for a domain, if
// any. Routing keys match the domain exactly or as a parent domain.
func (m *Manager) routedEndpoints(domain string) []string {
	for key, endpoints := range m.cfg.Proxy.DomainRouting {
		if domain == key || strings.HasSuffix(domain, "."+key) {
			return endpoints
		}
	}
	return nil
}

func (m *Manager) rotate(pool string, endpoints []string) string {
	if len(endpoints) == 0 {
		return ""
	}
	if m.cfg.Proxy.Selection == SelectionRandom {
		return endpoints[rand.Intn(len(endpoints))]
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.nextIdx[pool] % len(endpoints)
	m.nextIdx[pool] = i + 1
	return endpoints[i]
}

// SelectForDomain returns the proxy endpoint to use for a domain, or
// the empty string when no proxy applies.
func (m *Manager) SelectForDomain(domain string) string {
	if routed := m.routedEndpoints(domain); routed != nil {
		return m.rotate(domainPoolKey(domain, routed, m.cfg.Proxy.DomainRouting), routed)
	}
	return m.rotate("", m.cfg.Proxy.Endpoints)
}

// Candidates returns every proxy worth trying for a domain, in order,
// with a final empty entry meaning a direct connection. A download
// attempt walks this list until one succeeds.
func (m *Manager) Candidates(domain string) []string {
	var pool []string
	if routed := m.routedEndpoints(domain); routed != nil {
		pool = routed
	} else {
		pool = m.cfg.Proxy.Endpoints
	}

	if len(pool) == 0 {
		return []string{""}
	}

	first := m.rotate(domainPoolKey(domain, pool, m.cfg.Proxy.DomainRouting), pool)
	out := make([]string, 0, len(pool)+1)
	out = append(out, first)
	for _, ep := range pool {
		if ep != first {
			out = append(out, ep)
		}
	}
	return append(out, "")
}

func domainPoolKey(domain string, pool []string, routing map[string][]string) string {
	for key := range routing {
		if domain == key || strings.HasSuffix(domain, "."+key) {
			return key
		}
	}
	return ""
}
