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

// Package grpcconn couples a reconciliation loop with a gRPC client
// connection. The loop's insert/remove events drive the address set of a
// per-channel gRPC name resolver, so the connection load-balances RPCs
// across whatever endpoints DNS currently advertises, while the connection
// itself owns dialing, retries and multiplexing.
package grpcconn

import (
	"fmt"
	"net/url"

	"github.com/Makinami/autobalance"
	"github.com/Makinami/autobalance/endpoint"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// scheme is the URL scheme of the per-channel name resolver. It never
// collides with globally registered resolvers because the builder is passed
// directly to the connection via grpc.WithResolvers.
const scheme = "autobalance"

// Channel is an auto-balanced gRPC channel: a [grpc.ClientConn] whose
// address set tracks DNS, plus the reconciliation loop that keeps it
// current and the status/health registers describing it.
type Channel struct {
	channel *autobalance.Channel
	conn    *grpc.ClientConn
	book    *addressBook
}

// New creates an auto-balanced channel for the given template. The
// reconciliation loop starts immediately; the connection starts connecting
// as soon as the first endpoints are installed. RPCs are spread across
// endpoints round-robin.
func New(template *endpoint.Template, options ...Option) (*Channel, error) {
	var opts channelOptions
	for _, option := range options {
		option.apply(&opts)
	}

	book := newAddressBook()
	dialOptions := dialOptionsFromTuning(template.URL().Scheme, template.Tuning())
	dialOptions = append(dialOptions,
		grpc.WithResolvers(book),
		grpc.WithDefaultServiceConfig(`{"loadBalancingConfig": [{"round_robin":{}}]}`),
	)
	dialOptions = append(dialOptions, opts.dialOptions...)

	conn, err := grpc.NewClient(scheme+":///"+template.Domain(), dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("create client connection: %w", err)
	}

	channel := autobalance.New(template, book, opts.channelOptions...)
	book.setRefresher(channel.ResolveNow)
	conn.Connect()
	return &Channel{channel: channel, conn: conn, book: book}, nil
}

// NewStatic creates a channel for a URL whose host is already a literal IP
// address: the single endpoint is installed once and no resolution ever
// happens.
func NewStatic(ep endpoint.Endpoint, options ...Option) (*Channel, error) {
	var opts channelOptions
	for _, option := range options {
		option.apply(&opts)
	}

	parsed, err := url.Parse(ep.URL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint URL: %w", err)
	}
	book := newAddressBook()
	dialOptions := dialOptionsFromTuning(parsed.Scheme, ep.Tuning)
	dialOptions = append(dialOptions, grpc.WithResolvers(book))
	dialOptions = append(dialOptions, opts.dialOptions...)

	conn, err := grpc.NewClient(book.Scheme()+":///"+ep.Key.String(), dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("create client connection: %w", err)
	}

	channel := autobalance.NewStatic(ep, book, opts.channelOptions...)
	conn.Connect()
	return &Channel{channel: channel, conn: conn, book: book}, nil
}

// ClientConn returns the shared connection that RPC stubs should dispatch
// calls through. It remains valid until Close.
func (c *Channel) ClientConn() *grpc.ClientConn {
	return c.conn
}

// Status reports the latest reconciliation status. Calls may still succeed
// while the status is a resolution error, or even stopped, as long as
// previously installed endpoints remain reachable.
func (c *Channel) Status() autobalance.Status {
	return c.channel.Status()
}

// Health reports the current derived health.
func (c *Channel) Health() autobalance.Health {
	return c.channel.Health()
}

// EndpointCount reports the current size of the installed endpoint set.
func (c *Channel) EndpointCount() int {
	return c.channel.EndpointCount()
}

// ResolveNow hints the reconciliation loop to re-resolve without waiting
// for the next tick boundary.
func (c *Channel) ResolveNow() {
	c.channel.ResolveNow()
}

// Close tears down the reconciliation loop and the client connection. The
// address book is closed first so that a loop blocked on a send observes
// the terminal closed-sink signal rather than hanging.
func (c *Channel) Close() error {
	c.book.close()
	group := new(errgroup.Group)
	group.Go(c.channel.Close)
	group.Go(c.conn.Close)
	return group.Wait()
}

// Option is an option used to customize the behavior of an auto-balanced
// gRPC channel.
type Option interface {
	apply(*channelOptions)
}

type optionFunc func(*channelOptions)

func (f optionFunc) apply(opts *channelOptions) {
	f(opts)
}

type channelOptions struct {
	channelOptions []autobalance.ChannelOption
	dialOptions    []grpc.DialOption
}

// WithChannelOptions forwards options to the underlying
// [autobalance.Channel], such as the poll interval or a custom resolver.
func WithChannelOptions(options ...autobalance.ChannelOption) Option {
	return optionFunc(func(opts *channelOptions) {
		opts.channelOptions = append(opts.channelOptions, options...)
	})
}

// WithDialOptions appends raw dial options for the client connection, after
// the ones derived from the template's tuning.
func WithDialOptions(options ...grpc.DialOption) Option {
	return optionFunc(func(opts *channelOptions) {
		opts.dialOptions = append(opts.dialOptions, options...)
	})
}
