package rpc

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out a token bucket per client address. A zero rate
// disables limiting.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*limiterEntry
	now      func() time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (l *rateLimiter) allow(client string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.visitors[client]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[client] = entry
		l.evictIdle(now)
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *rateLimiter) evictIdle(now time.Time) {
	for id, entry := range l.visitors {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.visitors, id)
		}
	}
}

// proxyResolver derives the client address, honouring X-Forwarded-For only
// when the direct peer is a trusted proxy.
type proxyResolver struct {
	trusted []*net.IPNet
}

func newProxyResolver(entries []string) (*proxyResolver, error) {
	resolver := &proxyResolver{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("rpc: invalid trusted proxy %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			resolver.trusted = append(resolver.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("rpc: invalid trusted proxy %q: %w", entry, err)
		}
		resolver.trusted = append(resolver.trusted, network)
	}
	return resolver, nil
}

func (p *proxyResolver) isTrusted(ip net.IP) bool {
	for _, network := range p.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (p *proxyResolver) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil || !p.isTrusted(peer) {
		return host
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return host
	}
	// Walk right to left and stop at the first hop we do not trust.
	hops := strings.Split(forwarded, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		candidate := net.ParseIP(strings.TrimSpace(hops[i]))
		if candidate == nil {
			break
		}
		if !p.isTrusted(candidate) || i == 0 {
			return candidate.String()
		}
	}
	return host
}
