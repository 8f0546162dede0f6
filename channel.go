// Copyright 2024-2026 Makinami
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package autobalance

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/Makinami/autobalance/endpoint"
	"github.com/Makinami/autobalance/internal"
	"github.com/Makinami/autobalance/resolver"
	"go.uber.org/zap"
)

// Channel owns one reconciliation loop. It resolves the template's domain
// on a fixed cadence, diffs the result against the endpoint set it installed
// previously, and feeds insert/remove events to the sink. The loop is the
// only writer of the status and endpoint-count registers; any number of
// goroutines may read them through [Channel.Status], [Channel.Health] and
// [Channel.EndpointCount] without blocking it.
type Channel struct {
	template     *endpoint.Template
	sink         Sink
	resolver     resolver.Resolver
	pollInterval time.Duration
	logger       *zap.Logger

	cancel     context.CancelFunc
	doneSignal chan struct{}
	refreshCh  chan struct{}

	status        *internal.Watch[Status]
	endpointCount *internal.Watch[int]

	clock internal.Clock
}

// New creates a channel for the given template and starts its
// reconciliation loop immediately. The first resolution is attempted right
// away, not after the first poll interval. The sink is owned by the caller's
// downstream pool; the loop only writes to it.
func New(template *endpoint.Template, sink Sink, options ...ChannelOption) *Channel {
	channel, opts := newChannel(template, sink, options)
	ctx, cancel := context.WithCancel(opts.rootCtx)
	channel.cancel = cancel
	go channel.run(ctx)
	return channel
}

// NewStatic creates a channel that installs the given endpoint once and
// performs no resolution. It exists for URLs whose host is already a
// literal IP address (see [endpoint.ErrAlreadyIPAddress]): the endpoint set
// can never change, so there is nothing to reconcile. The returned
// channel's status never becomes StatusResolutionError.
func NewStatic(ep endpoint.Endpoint, sink Sink, options ...ChannelOption) *Channel {
	channel, opts := newChannel(nil, sink, options)
	ctx, cancel := context.WithCancel(opts.rootCtx)
	channel.cancel = cancel
	go func() {
		defer close(channel.doneSignal)
		defer cancel()
		if err := sink.Send(ctx, Insert(ep)); err != nil {
			if errors.Is(err, ErrSinkClosed) {
				channel.status.Store(Status{Code: StatusStopped})
			}
			return
		}
		channel.endpointCount.Store(1)
	}()
	return channel
}

func newChannel(template *endpoint.Template, sink Sink, options []ChannelOption) (*Channel, *channelOptions) {
	var opts channelOptions
	for _, option := range options {
		option.apply(&opts)
	}
	opts.applyDefaults()
	channel := &Channel{
		template:      template,
		sink:          sink,
		resolver:      opts.resolver,
		pollInterval:  opts.pollInterval,
		logger:        opts.logger,
		doneSignal:    make(chan struct{}),
		refreshCh:     make(chan struct{}, 1),
		status:        internal.NewWatch(Status{Code: StatusOK}),
		endpointCount: internal.NewWatch(0),
		clock:         internal.NewRealClock(),
	}
	return channel, &opts
}

// Status returns the latest reconciliation status. It never blocks and has
// no side effects.
func (c *Channel) Status() Status {
	return c.status.Load()
}

// EndpointCount returns the current size of the installed endpoint set. It
// never blocks and has no side effects.
func (c *Channel) EndpointCount() int {
	return c.endpointCount.Load()
}

// Health derives the current health from the endpoint count and the latest
// status. It is recomputed on every call and never stored: no endpoints is
// HealthBroken regardless of status; with endpoints installed, a resolution
// error means HealthUndetermined and anything else HealthOK.
func (c *Channel) Health() Health {
	return classifyHealth(c.endpointCount.Load(), c.status.Load())
}

// ResolveNow hints the loop to re-resolve without waiting for the next tick
// boundary. It never blocks; redundant hints coalesce.
func (c *Channel) ResolveNow() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Close aborts the reconciliation loop and waits for its goroutine to
// exit. No partial tick is guaranteed to complete: in-flight changes may or
// may not have reached the sink. Close does not close the sink, which the
// downstream pool owns.
func (c *Channel) Close() error {
	c.cancel()
	<-c.doneSignal
	return nil
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.doneSignal)
	defer c.cancel()

	timer := c.clock.NewTimer(0)
	if !timer.Stop() {
		<-timer.Chan()
	}

	installed := make(map[netip.Addr]struct{})
	for {
		ttl, err := c.tick(ctx, installed)
		switch {
		case err == nil:
		case errors.Is(err, ErrSinkClosed):
			c.status.Store(Status{Code: StatusStopped})
			c.logger.Info("change sink closed, reconciliation stopped",
				zap.String("domain", c.template.Domain()))
			return
		default:
			if ctx.Err() != nil {
				// Cancelled mid-tick.
				return
			}
			// The sink contract permits only ErrSinkClosed or a context
			// error, but an out-of-contract failure still has to leave the
			// status register in a terminal state readers can observe.
			c.status.Store(Status{Code: StatusStopped})
			c.logger.Warn("unexpected sink error, reconciliation stopped",
				zap.String("domain", c.template.Domain()),
				zap.Error(err))
			return
		}

		interval := c.pollInterval
		if ttl > 0 {
			interval = ttl
		}
		timer.Reset(interval)

		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.Chan()
			}
			return
		case <-c.refreshCh:
			// We still want to drain the timer in this case:
			// > Reset should be invoked only on stopped or expired timers
			// > with drained channels.
			// https://pkg.go.dev/time#Timer.Reset
			if !timer.Stop() {
				<-timer.Chan()
			}
			// Continue.
		case <-timer.Chan():
			// Continue.
		}
	}
}

// tick performs one resolve-diff-apply-publish cycle against the installed
// set, which it owns exclusively. Resolution failures are absorbed here:
// they update the status register and leave everything else alone. The
// returned error is only ever a terminal condition, either ErrSinkClosed or
// cancellation.
func (c *Channel) tick(ctx context.Context, installed map[netip.Addr]struct{}) (time.Duration, error) {
	domain := c.template.Domain()
	addresses, ttl, err := c.resolver.Resolve(ctx, domain)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c.status.Store(resolutionError(err))
		c.logger.Warn("resolution failed, keeping last known endpoints",
			zap.String("domain", domain),
			zap.Int("endpoints", len(installed)),
			zap.Error(err))
		return 0, nil
	}
	c.status.Store(Status{Code: StatusOK})

	fresh := make(map[netip.Addr]struct{}, len(addresses))
	for _, address := range addresses {
		fresh[address.Unmap()] = struct{}{}
	}

	var added, removed int
	for address := range fresh {
		if _, ok := installed[address]; ok {
			continue
		}
		if err := c.sink.Send(ctx, Insert(c.template.Build(address))); err != nil {
			return 0, err
		}
		added++
	}
	for address := range installed {
		if _, ok := fresh[address]; ok {
			continue
		}
		if err := c.sink.Send(ctx, Remove(address)); err != nil {
			return 0, err
		}
		removed++
	}

	clear(installed)
	for address := range fresh {
		installed[address] = struct{}{}
	}
	c.endpointCount.Store(len(installed))

	if added > 0 || removed > 0 {
		c.logger.Debug("endpoint set updated",
			zap.String("domain", domain),
			zap.Int("added", added),
			zap.Int("removed", removed),
			zap.Int("endpoints", len(installed)))
	}
	return ttl, nil
}
