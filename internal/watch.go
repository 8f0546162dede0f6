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

import "sync/atomic"

// Watch is a single-writer, multi-reader cell that holds only the latest
// published value. Readers never block the writer or each other, and no
// history is retained. The zero value is not usable; construct with
// [NewWatch].
type Watch[T any] struct {
	value atomic.Pointer[T]
}

// NewWatch returns a watch cell holding the given initial value.
func NewWatch[T any](initial T) *Watch[T] {
	w := &Watch[T]{}
	w.value.Store(&initial)
	return w
}

// Store publishes a new value, replacing the previous one. Only one
// goroutine may call Store.
func (w *Watch[T]) Store(value T) {
	w.value.Store(&value)
}

// Load returns the most recently published value.
func (w *Watch[T]) Load() T {
	return *w.value.Load()
}
