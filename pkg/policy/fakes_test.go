package policy

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/vireonet/vireo/pkg/core"
	"github.com/vireonet/vireo/pkg/task"
)

// fakeSched is a synchronous task.Scheduler. Tasks queue up until the test
// drains them; timers fire only when told to.
type fakeSched struct {
	mu     sync.Mutex
	queue  []task.Fn
	timers []*fakeTimer
}

type fakeTimer struct {
	delay time.Duration
	run   task.Fn
}

func (s *fakeSched) Post(_ string, fn task.Fn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, fn)
}

func (s *fakeSched) Idle(name string, fn task.Fn) *task.Token {
	tok, run := task.NewHandle(name, fn)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, run)
	return tok
}

func (s *fakeSched) After(d time.Duration, name string, fn task.Fn) *task.Token {
	tok, run := task.NewHandle(name, fn)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = append(s.timers, &fakeTimer{delay: d, run: run})
	return tok
}

// drain runs queued tasks, including ones they queue, until none remain.
func (s *fakeSched) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn(ctx)
	}
}

func (s *fakeSched) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// fireTimers runs all pending timers and then drains their fallout.
func (s *fakeSched) fireTimers(ctx context.Context) {
	s.mu.Lock()
	timers := s.timers
	s.timers = nil
	s.mu.Unlock()
	for _, t := range timers {
		t.run(ctx)
	}
	s.drain(ctx)
}

// fakeDNS records every call made on the DNS manager.
type fakeDNS struct {
	begins, ends int
	initial      string
	hostname     string

	registered map[*core.IPConfig]core.DNSPriority
	ifaces     map[*core.IPConfig]string

	changed *core.Signal[struct{}]
}

func newFakeDNS() *fakeDNS {
	return &fakeDNS{
		registered: make(map[*core.IPConfig]core.DNSPriority),
		ifaces:     make(map[*core.IPConfig]string),
		changed:    core.NewSignal[struct{}](),
	}
}

func (f *fakeDNS) BeginUpdates(context.Context, string) { f.begins++ }
func (f *fakeDNS) EndUpdates(context.Context, string)   { f.ends++ }

func (f *fakeDNS) SetIPConfig(_ context.Context, iface string, cfg *core.IPConfig, prio core.DNSPriority) {
	f.registered[cfg] = prio
	f.ifaces[cfg] = iface
}

func (f *fakeDNS) RemoveIPConfig(_ context.Context, cfg *core.IPConfig) {
	delete(f.registered, cfg)
	delete(f.ifaces, cfg)
}

func (f *fakeDNS) SetInitialHostname(name string)             { f.initial = name }
func (f *fakeDNS) SetHostname(_ context.Context, name string) { f.hostname = name }
func (f *fakeDNS) ConfigChanged() *core.Signal[struct{}]      { return f.changed }

type fakeFirewall struct {
	zones   []string
	started *core.Signal[struct{}]
}

func newFakeFirewall() *fakeFirewall {
	return &fakeFirewall{started: core.NewSignal[struct{}]()}
}

func (f *fakeFirewall) UpdateZone(_ context.Context, d *core.Device) {
	f.zones = append(f.zones, d.Iface)
}

func (f *fakeFirewall) Started() *core.Signal[struct{}] { return f.started }

type fakeDispatch struct {
	calls []core.DispatchAction
}

func (f *fakeDispatch) Call(_ context.Context, action core.DispatchAction) {
	f.calls = append(f.calls, action)
}

// fakePlatform serves link attributes and the startup hostname.
type fakePlatform struct {
	links    map[int]*core.Link
	hostname string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{links: make(map[int]*core.Link), hostname: "(none)"}
}

func (f *fakePlatform) Link(index int) *core.Link {
	return f.links[index]
}

func (f *fakePlatform) GetHostname() (string, error) { return f.hostname, nil }
func (f *fakePlatform) SetHostname(string) error     { return nil }

// fakeResolver blocks each lookup until the test releases it.
type fakeResolver struct {
	mu      sync.Mutex
	name    string
	err     error
	gate    chan struct{}
	pending int
}

func newFakeResolver(name string) *fakeResolver {
	return &fakeResolver{name: name, gate: make(chan struct{}, 16)}
}

func (f *fakeResolver) LookupPTR(ctx context.Context, _ netip.Addr) (string, error) {
	f.mu.Lock()
	f.pending++
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.gate:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name, f.err
}

// release lets one blocked lookup complete.
func (f *fakeResolver) release() {
	f.gate <- struct{}{}
}
