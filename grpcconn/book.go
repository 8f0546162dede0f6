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
	"net/netip"
	"sync"

	"github.com/Makinami/autobalance"
	gresolver "google.golang.org/grpc/resolver"
)

// addressBook is the change sink backing one channel. It doubles as the
// gRPC resolver builder for that channel: every insert or remove from the
// reconciliation loop becomes a full-state update pushed to the connection.
// Once closed, it reports ErrSinkClosed for every send, which is the loop's
// terminal stop signal.
type addressBook struct {
	mu        sync.Mutex
	addresses map[netip.Addr]gresolver.Address
	conns     []gresolver.ClientConn
	refresh   func()
	closed    bool
}

var (
	_ autobalance.Sink  = (*addressBook)(nil)
	_ gresolver.Builder = (*addressBook)(nil)
)

func newAddressBook() *addressBook {
	return &addressBook{
		addresses: map[netip.Addr]gresolver.Address{},
	}
}

// Send applies one endpoint change and broadcasts the resulting address set
// to every built connection. It never blocks on the connection: gRPC's
// UpdateState is the acknowledgment, so back-pressure is inherent in the
// call itself.
func (b *addressBook) Send(_ context.Context, change autobalance.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return autobalance.ErrSinkClosed
	}
	switch change.Op {
	case autobalance.OpInsert:
		b.addresses[change.Key] = gresolver.Address{
			Addr:       change.Endpoint.HostPort,
			ServerName: change.Endpoint.Authority,
		}
	case autobalance.OpRemove:
		delete(b.addresses, change.Key)
	}
	b.broadcastLocked()
	return nil
}

// Build registers a new consumer connection and primes it with the current
// address set.
func (b *addressBook) Build(_ gresolver.Target, cc gresolver.ClientConn, _ gresolver.BuildOptions) (gresolver.Resolver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns = append(b.conns, cc)
	_ = cc.UpdateState(gresolver.State{Addresses: b.addressesLocked()})
	return bookResolver{book: b}, nil
}

func (b *addressBook) Scheme() string {
	return scheme
}

// setRefresher connects gRPC's re-resolution hint to the reconciliation
// loop. It is called once, right after the loop starts.
func (b *addressBook) setRefresher(refresh func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = refresh
}

func (b *addressBook) resolveNow() {
	b.mu.Lock()
	refresh := b.refresh
	b.mu.Unlock()
	if refresh != nil {
		refresh()
	}
}

func (b *addressBook) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.conns = nil
}

// +checklocks:b.mu
func (b *addressBook) addressesLocked() []gresolver.Address {
	addresses := make([]gresolver.Address, 0, len(b.addresses))
	for _, address := range b.addresses {
		addresses = append(addresses, address)
	}
	return addresses
}

// +checklocks:b.mu
func (b *addressBook) broadcastLocked() {
	addresses := b.addressesLocked()
	for _, cc := range b.conns {
		// An error here means the connection rejected the update (for
		// example, no balancer could use the addresses). The next
		// broadcast supersedes it, so there is nothing to retry.
		_ = cc.UpdateState(gresolver.State{Addresses: addresses})
	}
}

// bookResolver is the per-connection handle gRPC holds. All state lives in
// the book; the handle only forwards re-resolution hints.
type bookResolver struct {
	book *addressBook
}

func (r bookResolver) ResolveNow(gresolver.ResolveNowOptions) {
	r.book.resolveNow()
}

func (r bookResolver) Close() {}
