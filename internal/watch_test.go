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

package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestWatchHoldsLatestValue(t *testing.T) {
	t.Parallel()

	watch := NewWatch(1)
	assert.Equal(t, 1, watch.Load())

	watch.Store(2)
	watch.Store(3)
	assert.Equal(t, 3, watch.Load())
}

func TestWatchReadersNeverBlockWriter(t *testing.T) {
	t.Parallel()

	const writes = 10_000

	watch := NewWatch(0)
	var group errgroup.Group
	for range 4 {
		group.Go(func() error {
			previous := 0
			for {
				value := watch.Load()
				// The writer publishes monotonically increasing values, so
				// a reader may never observe time going backwards.
				if value < previous {
					t.Errorf("watch went backwards: %d after %d", value, previous)
					return nil
				}
				previous = value
				if value == writes {
					return nil
				}
			}
		})
	}
	for i := 1; i <= writes; i++ {
		watch.Store(i)
	}
	require.NoError(t, group.Wait())
	assert.Equal(t, writes, watch.Load())
}
