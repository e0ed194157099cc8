package gena

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-upnp/internal/eventloop"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp"
)

// DefaultDebounce is the delay between the first recorded change and the
// NOTIFY that reports it.
const DefaultDebounce = 200 * time.Millisecond

// StateFunc returns the current value of every evented variable. It is
// called on the loop when a subscription starts.
type StateFunc func() map[string]any

// Logger is the logging interface used by the publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Publisher.
type Config struct {
	// ServiceType names the service in log messages, e.g. "AVTransport:1".
	ServiceType string

	// LastChangeNamespace selects LastChange eventing with the given Event
	// namespace. Empty means one property per variable.
	LastChangeNamespace string

	// Debounce delays change notifications. Zero means DefaultDebounce.
	Debounce time.Duration
}

// SubscriptionInfo describes a live subscription.
type SubscriptionInfo struct {
	SID       string    `json:"sid"`
	Callbacks []string  `json:"callbacks"`
	Seq       uint32    `json:"seq"`
	Expires   time.Time `json:"expires"`
}

// Publisher manages the subscriptions of one service instance.
//
// Thread Safety:
//   - All methods must be called on the event loop.
//   - Delivery runs on one goroutine per subscription.
type Publisher struct {
	loop   *eventloop.Loop
	sender Sender
	cfg    Config
	state  StateFunc
	logger Logger

	ctx    context.Context
	cancel context.CancelFunc

	subs     map[string]*subscription
	pending  map[string]string
	debounce *eventloop.Timer
	closed   bool
}

type subscription struct {
	sid       string
	callbacks []string
	seq       uint32
	expires   time.Time
	timer     *eventloop.Timer

	// active is set by Activate, on the loop, when delivery starts.
	active  bool
	removed atomic.Bool
	done    chan struct{}

	mu    sync.Mutex
	queue []Notification
	wake  chan struct{}

	// current is the callback in use. Only the delivery goroutine touches it.
	current int
}

// NewPublisher creates a publisher delivering through sender.
func NewPublisher(loop *eventloop.Loop, sender Sender, cfg Config, state StateFunc) *Publisher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if state == nil {
		state = func() map[string]any { return nil }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		loop:    loop,
		sender:  sender,
		cfg:     cfg,
		state:   state,
		logger:  noopLogger{},
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[string]*subscription),
		pending: make(map[string]string),
	}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Subscribe creates a subscription, queues the initial full-state NOTIFY
// with SEQ 0 and arms the expiry timer. Nothing is sent until Activate is
// called, so the SID can reach the subscriber before its first NOTIFY.
//
// Parameters:
//   - callbacks: Delivery URLs in preference order; must not be empty
//   - timeout: Subscription lifetime; zero or negative means DefaultTimeout,
//     longer than MaxTimeout means MaxTimeout
//
// Returns:
//   - string: The SID ("uuid:...")
//   - time.Duration: The granted timeout
func (p *Publisher) Subscribe(callbacks []string, timeout time.Duration) (string, time.Duration) {
	timeout = clampTimeout(timeout)
	sub := &subscription{
		sid:       upnp.UUIDPrefix + uuid.NewString(),
		callbacks: append([]string(nil), callbacks...),
		done:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
	if p.closed {
		return sub.sid, timeout
	}
	p.subs[sub.sid] = sub
	p.arm(sub, timeout)

	full := make(map[string]string)
	for name, v := range p.state() {
		full[name] = FormatValue(v)
	}
	p.notify(sub, p.body(full))

	p.logger.Debug("subscription created",
		"service", p.cfg.ServiceType, "sid", sub.sid, "callbacks", sub.callbacks, "timeout", timeout)
	return sub.sid, timeout
}

// Activate starts delivering the notifications of sid, beginning with the
// initial event. Unknown, removed and already active SIDs are ignored.
func (p *Publisher) Activate(sid string) {
	sub, ok := p.subs[sid]
	if !ok || sub.active {
		return
	}
	sub.active = true
	go p.deliver(sub)
}

// Renew resets the expiry of sid to timeout. It reports false, changing
// nothing, when sid is unknown.
func (p *Publisher) Renew(sid string, timeout time.Duration) (time.Duration, bool) {
	sub, ok := p.subs[sid]
	if !ok {
		return 0, false
	}
	timeout = clampTimeout(timeout)
	sub.timer.Stop()
	p.arm(sub, timeout)
	p.logger.Debug("subscription renewed", "service", p.cfg.ServiceType, "sid", sid, "timeout", timeout)
	return timeout, true
}

// Unsubscribe ends sid. It reports false when sid is unknown.
func (p *Publisher) Unsubscribe(sid string) bool {
	sub, ok := p.subs[sid]
	if !ok {
		return false
	}
	p.remove(sub)
	p.logger.Debug("subscription cancelled", "service", p.cfg.ServiceType, "sid", sid)
	return true
}

// Has reports whether sid is a live subscription.
func (p *Publisher) Has(sid string) bool {
	_, ok := p.subs[sid]
	return ok
}

// Subscriptions lists the live subscriptions ordered by SID.
func (p *Publisher) Subscriptions() []SubscriptionInfo {
	out := make([]SubscriptionInfo, 0, len(p.subs))
	for _, sub := range p.subs {
		out = append(out, SubscriptionInfo{
			SID:       sub.sid,
			Callbacks: append([]string(nil), sub.callbacks...),
			Seq:       sub.seq,
			Expires:   sub.expires,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out
}

// RecordChange stores the new value of an evented variable and arms the
// debounce timer if it is not already armed.
func (p *Publisher) RecordChange(name string, value any) {
	if p.closed {
		return
	}
	p.pending[name] = FormatValue(value)
	if p.debounce == nil {
		p.debounce = p.loop.AfterFunc(p.cfg.Debounce, func() {
			p.debounce = nil
			p.Flush()
		})
	}
}

// Flush sends the pending changes to every subscriber as one NOTIFY each.
// It does nothing when no change is pending.
func (p *Publisher) Flush() {
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	if len(p.pending) == 0 {
		return
	}

	body := p.body(p.pending)
	p.pending = make(map[string]string)

	for _, sub := range p.subs {
		p.notify(sub, body)
	}
}

// Close drops every subscription and stops all timers.
func (p *Publisher) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	for _, sub := range p.subs {
		p.remove(sub)
	}
	p.pending = make(map[string]string)
	p.cancel()
}

func (p *Publisher) body(values map[string]string) []byte {
	vars := sortedVars(values)
	if p.cfg.LastChangeNamespace == "" {
		return PropertySet(vars)
	}
	return PropertySet([]Var{{Name: LastChangeVariable, Value: LastChange(p.cfg.LastChangeNamespace, vars)}})
}

func (p *Publisher) arm(sub *subscription, timeout time.Duration) {
	sub.expires = p.loop.Now().Add(timeout)
	sub.timer = p.loop.AfterFunc(timeout, func() {
		if p.subs[sub.sid] != sub {
			return
		}
		p.logger.Debug("subscription expired", "service", p.cfg.ServiceType, "sid", sub.sid)
		p.remove(sub)
	})
}

func (p *Publisher) remove(sub *subscription) {
	sub.timer.Stop()
	delete(p.subs, sub.sid)
	if sub.removed.CompareAndSwap(false, true) {
		close(sub.done)
	}
}

// notify hands the next notification of sub to its delivery goroutine and
// advances SEQ.
func (p *Publisher) notify(sub *subscription, body []byte) {
	n := Notification{SID: sub.sid, Seq: sub.seq, Body: body}
	sub.seq = nextSeq(sub.seq)

	sub.mu.Lock()
	sub.queue = append(sub.queue, n)
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d > MaxTimeout:
		return MaxTimeout
	}
	return d
}

// nextSeq increments a SEQ value, wrapping to 1 after the maximum.
func nextSeq(seq uint32) uint32 {
	if seq == math.MaxUint32 {
		return 1
	}
	return seq + 1
}

func (p *Publisher) deliver(sub *subscription) {
	for {
		n, ok := sub.next()
		if !ok {
			return
		}
		if sub.removed.Load() {
			return
		}
		if !p.send(sub, n) {
			p.loop.Post(func() { p.dropFailed(sub) })
			return
		}
	}
}

func (p *Publisher) send(sub *subscription, n Notification) bool {
	for sub.current < len(sub.callbacks) {
		cb := sub.callbacks[sub.current]
		err := p.sender.Notify(p.ctx, cb, n)
		if err == nil {
			return true
		}
		if p.ctx.Err() != nil || sub.removed.Load() {
			return true
		}
		p.logger.Debug("notify failed, trying next callback",
			"service", p.cfg.ServiceType, "sid", sub.sid, "callback", cb, "error", err)
		sub.current++
	}
	return false
}

func (p *Publisher) dropFailed(sub *subscription) {
	if p.subs[sub.sid] != sub {
		return
	}
	p.logger.Warn("dropping subscription, no callback reachable",
		"service", p.cfg.ServiceType, "sid", sub.sid, "callbacks", sub.callbacks)
	p.remove(sub)
}

// next blocks until a notification is queued or the subscription ends.
func (s *subscription) next() (Notification, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			n := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return n, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
			return Notification{}, false
		}
	}
}
