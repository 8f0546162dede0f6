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

package grpcconn

import (
	"context"
	"sync"
	"time"

	"github.com/Makinami/autobalance/endpoint"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
)

// unaryInterceptors realizes the tuning values that gRPC has no dial option
// for: the default request timeout, the in-flight concurrency cap, and the
// per-window rate limit. Each returns its slot only when configured, so the
// common case adds no per-call overhead.
func unaryInterceptors(tuning endpoint.Tuning) []grpc.UnaryClientInterceptor {
	var interceptors []grpc.UnaryClientInterceptor
	if tuning.RequestTimeout > 0 {
		interceptors = append(interceptors, timeoutInterceptor(tuning.RequestTimeout))
	}
	if tuning.ConcurrencyLimit > 0 {
		interceptors = append(interceptors, concurrencyInterceptor(tuning.ConcurrencyLimit))
	}
	if tuning.RateLimit > 0 && tuning.RateLimitWindow > 0 {
		interceptors = append(interceptors, rateLimitInterceptor(tuning.RateLimit, tuning.RateLimitWindow))
	}
	return interceptors
}

// timeoutInterceptor bounds calls that arrive without a deadline of their
// own. A caller-supplied deadline always wins.
func timeoutInterceptor(timeout time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// concurrencyInterceptor caps the number of in-flight calls. Calls beyond
// the cap wait their turn, or fail if their context expires first.
func concurrencyInterceptor(limit int) grpc.UnaryClientInterceptor {
	sem := semaphore.NewWeighted(int64(limit))
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer sem.Release(1)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// rateLimitInterceptor admits at most limit calls per window. Excess calls
// sleep until the window rolls over rather than failing.
func rateLimitInterceptor(limit uint64, window time.Duration) grpc.UnaryClientInterceptor {
	limiter := &windowLimiter{limit: limit, window: window}
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if err := limiter.wait(ctx); err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

type windowLimiter struct {
	limit  uint64
	window time.Duration

	mu      sync.Mutex
	started time.Time
	used    uint64
}

func (l *windowLimiter) wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		if l.started.IsZero() || now.Sub(l.started) >= l.window {
			l.started = now
			l.used = 0
		}
		if l.used < l.limit {
			l.used++
			l.mu.Unlock()
			return nil
		}
		wakeAt := l.started.Add(l.window)
		l.mu.Unlock()

		timer := time.NewTimer(time.Until(wakeAt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
