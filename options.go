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
	"net"
	"time"

	"github.com/Makinami/autobalance/resolver"
	"go.uber.org/zap"
)

const defaultPollInterval = 15 * time.Second

// ChannelOption is an option used to customize the behavior of a channel.
type ChannelOption interface {
	apply(*channelOptions)
}

// WithPollInterval sets the cadence of the reconciliation loop. If the
// resolver reports a TTL with its results, that TTL takes precedence for
// the following tick. If zero or no option is provided, a default of 15
// seconds is used.
func WithPollInterval(interval time.Duration) ChannelOption {
	return channelOptionFunc(func(opts *channelOptions) {
		opts.pollInterval = interval
	})
}

// WithResolver replaces the name resolution strategy. If no option is
// provided, the system resolver is used, preferring A records when both A
// and AAAA records are present.
func WithResolver(res resolver.Resolver) ChannelOption {
	return channelOptionFunc(func(opts *channelOptions) {
		opts.resolver = res
	})
}

// WithLogger directs the channel's diagnostics to the given logger. If no
// option is provided, nothing is logged.
func WithLogger(logger *zap.Logger) ChannelOption {
	return channelOptionFunc(func(opts *channelOptions) {
		opts.logger = logger
	})
}

// WithRootContext configures the root context for the channel's background
// goroutine. If not specified, [context.Background] is used. Cancelling the
// given context aborts reconciliation the same way [Channel.Close] does,
// except without waiting.
func WithRootContext(ctx context.Context) ChannelOption {
	return channelOptionFunc(func(opts *channelOptions) {
		opts.rootCtx = ctx
	})
}

type channelOptionFunc func(*channelOptions)

func (f channelOptionFunc) apply(opts *channelOptions) {
	f(opts)
}

type channelOptions struct {
	rootCtx      context.Context //nolint:containedctx
	pollInterval time.Duration
	resolver     resolver.Resolver
	logger       *zap.Logger
}

func (opts *channelOptions) applyDefaults() {
	if opts.rootCtx == nil {
		opts.rootCtx = context.Background()
	}
	if opts.pollInterval == 0 {
		opts.pollInterval = defaultPollInterval
	}
	if opts.resolver == nil {
		opts.resolver = resolver.NewDNSResolver(net.DefaultResolver, "ip", resolver.PreferIPv4)
	}
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
}
