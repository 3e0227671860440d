package bridge

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrEmptyHost is returned when attempting to allow an empty host.
var ErrEmptyHost = errors.New("host cannot be empty")

// HostPolicy decides which upstream hosts a connect may name. It is safe for
// concurrent use: every session consults it on connect, and an operator can
// adjust it at runtime through an embedding program.
//
// With the only-default toggle off every host is allowed. With it on, only
// the default host and explicitly allowed extras pass. Host comparison is
// case-insensitive.
type HostPolicy struct {
	mu          sync.RWMutex
	onlyDefault bool
	defaultHost string
	extra       map[string]struct{}
}

// NewHostPolicy creates a policy for the given default host.
func NewHostPolicy(defaultHost string, onlyDefault bool) *HostPolicy {
	return &HostPolicy{
		onlyDefault: onlyDefault,
		defaultHost: strings.ToLower(defaultHost),
		extra:       make(map[string]struct{}),
	}
}

// Allowed reports whether a connect may target host.
func (p *HostPolicy) Allowed(host string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.onlyDefault {
		return true
	}
	host = strings.ToLower(host)
	if host == p.defaultHost {
		return true
	}
	_, ok := p.extra[host]
	return ok
}

// Allow adds a host to the allowlist.
// Returns ErrEmptyHost if the host is empty.
func (p *HostPolicy) Allow(host string) error {
	if host == "" {
		return ErrEmptyHost
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.extra[strings.ToLower(host)] = struct{}{}
	return nil
}

// Disallow removes a host from the allowlist. The default host cannot be
// removed; removing an unknown host is a no-op.
func (p *HostPolicy) Disallow(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.extra, strings.ToLower(host))
}

// SetOnlyDefault switches the allowlist on or off.
func (p *HostPolicy) SetOnlyDefault(only bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onlyDefault = only
}

// OnlyDefault reports whether the allowlist is enforced.
func (p *HostPolicy) OnlyDefault() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.onlyDefault
}

// DefaultHost returns the host the policy was built around.
func (p *HostPolicy) DefaultHost() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultHost
}

// AllowedHosts returns a sorted slice of every explicitly allowed host,
// the default included.
func (p *HostPolicy) AllowedHosts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hosts := make([]string, 0, len(p.extra)+1)
	if p.defaultHost != "" {
		hosts = append(hosts, p.defaultHost)
	}
	for host := range p.extra {
		if host == p.defaultHost {
			continue
		}
		hosts = append(hosts, host)
	}

	sort.Strings(hosts)
	return hosts
}
