// Package rdns performs reverse-DNS lookups for the hostname pipeline.
package rdns

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// Resolver answers PTR queries. The policy engine calls it from a
// goroutine; cancellation of ctx must abort the query.
type Resolver interface {
	LookupPTR(ctx context.Context, addr netip.Addr) (string, error)
}

type resolver struct {
	servers []string
	timeout time.Duration
}

// Option configures the resolver.
type Option func(*resolver)

// WithServers overrides the nameservers read from resolvConf.
func WithServers(servers ...string) Option {
	return func(r *resolver) {
		r.servers = servers
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *resolver) {
		r.timeout = d
	}
}

const resolvConf = "/etc/resolv.conf"

// NewResolver returns a Resolver backed by the system's configured
// nameservers.
func NewResolver(opts ...Option) (Resolver, error) {
	r := &resolver{timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.servers) == 0 {
		cc, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", resolvConf)
		}
		for _, s := range cc.Servers {
			r.servers = append(r.servers, strings.TrimSpace(s)+":"+cc.Port)
		}
	}
	if len(r.servers) == 0 {
		return nil, errors.New("no nameservers configured")
	}
	return r, nil
}

func (r *resolver) LookupPTR(ctx context.Context, addr netip.Addr) (string, error) {
	name, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", err
	}
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypePTR)
	m.RecursionDesired = true

	c := &dns.Client{Timeout: r.timeout}
	var lastErr error
	for _, server := range r.servers {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		reply, _, err := c.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if reply.Rcode != dns.RcodeSuccess {
			lastErr = errors.Errorf("lookup of %s returned %s", name, dns.RcodeToString[reply.Rcode])
			continue
		}
		for _, rr := range reply.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		lastErr = errors.Errorf("no PTR record for %s", name)
	}
	return "", lastErr
}
