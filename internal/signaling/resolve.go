package signaling

import (
	"context"
	"fmt"
	"net"
	"time"
)

// publicDNS is queried when the system resolver cannot find the relay.
var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
}

const (
	systemLookupTimeout = time.Second
	publicLookupTimeout = 2 * time.Second
)

// lookupFunc resolves host using one resolver.
type lookupFunc func(ctx context.Context, host string) ([]string, error)

// resolver finds the relay host, trying the system configuration first and
// racing public servers second.
type resolver struct {
	system lookupFunc
	public []lookupFunc
}

func newResolver() *resolver {
	r := &resolver{system: (&net.Resolver{}).LookupHost}
	for _, server := range publicDNS {
		r.public = append(r.public, publicLookup(server))
	}
	return r
}

func publicLookup(server string) lookupFunc {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		},
	}
	return r.LookupHost
}

// lookup returns one address for host, preferring IPv4.
func (r *resolver) lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	sctx, cancel := context.WithTimeout(ctx, systemLookupTimeout)
	addrs, err := r.system(sctx, host)
	cancel()
	if ip, ok := pickAddr(addrs); err == nil && ok {
		return ip, nil
	}
	if len(r.public) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	return r.race(ctx, host)
}

func (r *resolver) race(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, publicLookupTimeout)
	defer cancel()

	type result struct {
		ip string
		ok bool
	}
	results := make(chan result, len(r.public))
	for _, lookup := range r.public {
		go func(lookup lookupFunc) {
			addrs, err := lookup(ctx, host)
			ip, ok := pickAddr(addrs)
			results <- result{ip: ip, ok: ok && err == nil}
		}(lookup)
	}

	for range r.public {
		select {
		case res := <-results:
			if res.ok {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public DNS timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public DNS servers failed", host, len(r.public))
}

// dialContext dials addr after resolving its host with lookup.
func (r *resolver) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func pickAddr(addrs []string) (string, bool) {
	if len(addrs) == 0 {
		return "", false
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, true
		}
	}
	return addrs[0], true
}

func trimBrackets(s string) string {
	if len(s) > 1 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}
