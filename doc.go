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

// Package autobalance keeps a pool of endpoints for one logical service
// name synchronized with periodic DNS lookups, and exposes an observable
// status and health signal so callers can reason about whether outbound
// calls are likely to succeed.
//
// The core is a reconciliation loop: on a fixed cadence it resolves a
// domain, diffs the result against the previously known endpoint set, and
// emits incremental [Change] events (insert or remove, one per endpoint) to
// a [Sink] owned by a downstream connection pool. Two observable registers
// are maintained alongside: the latest [Status] of resolution and the
// current endpoint count, from which [Health] is derived on demand.
//
// To create a channel, first build an [endpoint.Template] from a URL whose
// host is a domain name, then pass it to [New] together with the sink that
// should receive endpoint changes:
//
//	template, err := endpoint.NewTemplate("https://api.example.com:50051/")
//	if err != nil {
//	    // configuration error, fix the URL
//	}
//	channel := autobalance.New(template, sink,
//	    autobalance.WithPollInterval(15*time.Second),
//	)
//	defer channel.Close()
//
// A transient resolution failure never destroys previously known
// endpoints: the loop only reports it through [Channel.Status] and keeps
// using the last known set. The only terminal condition is the sink
// reporting [ErrSinkClosed], after which the loop publishes a stopped
// status and exits.
//
// URLs whose host is already a literal IP address have nothing to resolve;
// [endpoint.NewTemplate] rejects them with [endpoint.ErrAlreadyIPAddress].
// For those, build the single descriptor with [endpoint.NewStatic] and
// install it once via [NewStatic].
//
// The [github.com/Makinami/autobalance/grpcconn] package provides a
// ready-made sink that drives the address set of a gRPC client connection.
package autobalance
