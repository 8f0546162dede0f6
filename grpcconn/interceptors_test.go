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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestTimeoutInterceptorAddsDeadlineOnlyWhenMissing(t *testing.T) {
	t.Parallel()

	interceptor := timeoutInterceptor(time.Minute)
	var seen time.Time
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		seen, _ = ctx.Deadline()
		return nil
	}

	require.NoError(t, interceptor(context.Background(), "/svc/Method", nil, nil, nil, invoker))
	assert.InDelta(t, time.Minute, time.Until(seen), float64(5*time.Second))

	existing := time.Now().Add(time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), existing)
	t.Cleanup(cancel)
	require.NoError(t, interceptor(ctx, "/svc/Method", nil, nil, nil, invoker))
	assert.Equal(t, existing, seen)
}

func TestWindowLimiter(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	limiter := &windowLimiter{limit: 2, window: 50 * time.Millisecond}
	start := time.Now()
	for range 2 {
		require.NoError(t, limiter.wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// The third admission has to wait for the window to roll over.
	require.NoError(t, limiter.wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWindowLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	limiter := &windowLimiter{limit: 1, window: time.Hour}
	require.NoError(t, limiter.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)
	assert.ErrorIs(t, limiter.wait(ctx), context.DeadlineExceeded)
}
