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

	"github.com/Makinami/autobalance/endpoint"
)

// ErrSinkClosed is returned by [Sink.Send] once the sink's consumer has
// gone away. It is a terminal signal, not a retryable error: the
// reconciliation loop stops permanently when it sees it.
var ErrSinkClosed = errors.New("change sink is closed")

// Op discriminates the two kinds of endpoint change.
type Op int

const (
	// OpInsert installs a new endpoint under its key.
	OpInsert Op = iota + 1

	// OpRemove uninstalls the endpoint under the key.
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is one incremental endpoint event. Endpoint is populated only for
// OpInsert.
type Change struct {
	Op       Op
	Key      netip.Addr
	Endpoint endpoint.Endpoint
}

// Insert builds the change event installing the given endpoint.
func Insert(ep endpoint.Endpoint) Change {
	return Change{Op: OpInsert, Key: ep.Key, Endpoint: ep}
}

// Remove builds the change event uninstalling the endpoint under key.
func Remove(key netip.Addr) Change {
	return Change{Op: OpRemove, Key: key}
}

// Sink is the ordered, asynchronous consumer of endpoint changes, owned by
// the downstream connection pool. The reconciliation loop is its only
// writer.
type Sink interface {
	// Send delivers one change. It may block to apply back-pressure; the
	// loop will not emit the next change until the current one is accepted
	// or rejected. Send returns [ErrSinkClosed] once the consumer has gone
	// away, or the context's error if ctx is cancelled while blocked.
	Send(ctx context.Context, change Change) error
}
