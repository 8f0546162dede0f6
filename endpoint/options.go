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

package endpoint

import (
	"crypto/tls"
	"time"
)

// Tuning holds every transport tuning value a template applies to the
// endpoints it builds. Each option below maps to exactly one field, so the
// order in which options are supplied never affects the result. The zero
// value of a field means "use the transport's default" unless a default is
// documented on the corresponding option.
type Tuning struct {
	Authority               string
	UserAgent               string
	RequestTimeout          time.Duration
	ConnectTimeout          time.Duration
	TCPKeepAlive            time.Duration
	TCPNoDelay              bool
	ConcurrencyLimit        int
	RateLimit               uint64
	RateLimitWindow         time.Duration
	InitialStreamWindowSize uint32
	InitialConnWindowSize   uint32
	BufferSize              int
	KeepAliveInterval       time.Duration
	KeepAliveTimeout        time.Duration
	KeepAliveWhileIdle      bool
	AdaptiveWindow          bool
	TLS                     *tls.Config
}

// defaultTuning is the starting point options are applied on top of, so a
// caller-supplied false or zero sticks.
func defaultTuning() Tuning {
	return Tuning{
		ConnectTimeout: 30 * time.Second,
		TCPKeepAlive:   30 * time.Second,
		TCPNoDelay:     true,
	}
}

func newTuning(options []TemplateOption) Tuning {
	tuning := defaultTuning()
	for _, option := range options {
		option.apply(&tuning)
	}
	if tuning.TLS != nil {
		tuning.TLS = tuning.TLS.Clone()
	}
	return tuning
}

// TemplateOption is an option used to customize the endpoints a template
// builds.
type TemplateOption interface {
	apply(*Tuning)
}

type templateOptionFunc func(*Tuning)

func (f templateOptionFunc) apply(tuning *Tuning) {
	f(tuning)
}

// WithAuthority overrides the authority presented to servers (the TLS server
// name and HTTP/2 :authority pseudo-header). If not specified, the template
// URL's host is used, so that certificate verification still targets the
// domain name rather than the substituted IP address.
func WithAuthority(authority string) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.Authority = authority
	})
}

// WithUserAgent sets the User-Agent header value sent on each connection.
func WithUserAgent(userAgent string) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.UserAgent = userAgent
	})
}

// WithRequestTimeout limits the total duration of each request issued over
// a connection. If zero or unset, requests have no timeout.
func WithRequestTimeout(duration time.Duration) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.RequestTimeout = duration
	})
}

// WithConnectTimeout limits how long establishing a connection may take.
// If zero or unset, a default of 30 seconds is used.
func WithConnectTimeout(duration time.Duration) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.ConnectTimeout = duration
	})
}

// WithTCPKeepAlive sets the period between TCP keep-alive probes. If zero or
// unset, a default of 30 seconds is used. A negative value disables TCP
// keep-alive.
func WithTCPKeepAlive(period time.Duration) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.TCPKeepAlive = period
	})
}

// WithTCPNoDelay controls Nagle's algorithm on the underlying sockets.
// If no option is provided, no-delay is enabled.
func WithTCPNoDelay(enabled bool) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.TCPNoDelay = enabled
	})
}

// WithConcurrencyLimit caps the number of in-flight requests per connection.
// If zero or unset, concurrency is not limited by the client.
func WithConcurrencyLimit(limit int) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.ConcurrencyLimit = limit
	})
}

// WithRateLimit caps the number of requests permitted per window on each
// connection.
func WithRateLimit(limit uint64, window time.Duration) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.RateLimit = limit
		tuning.RateLimitWindow = window
	})
}

// WithInitialStreamWindowSize sets the initial HTTP/2 stream-level flow
// control window. If zero or unset, the transport's default is used.
func WithInitialStreamWindowSize(size uint32) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.InitialStreamWindowSize = size
	})
}

// WithInitialConnectionWindowSize sets the initial HTTP/2 connection-level
// flow control window. If zero or unset, the transport's default is used.
func WithInitialConnectionWindowSize(size uint32) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.InitialConnWindowSize = size
	})
}

// WithBufferSize sets the read and write buffer sizes for each connection.
// If zero or unset, the transport's default is used.
func WithBufferSize(size int) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.BufferSize = size
	})
}

// WithKeepAliveInterval enables HTTP/2 keep-alive pings at the given
// interval. If zero or unset, keep-alive pings are disabled.
func WithKeepAliveInterval(interval time.Duration) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.KeepAliveInterval = interval
	})
}

// WithKeepAliveTimeout sets how long to wait for a keep-alive ping
// acknowledgment before the connection is considered dead. Only meaningful
// together with WithKeepAliveInterval.
func WithKeepAliveTimeout(timeout time.Duration) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.KeepAliveTimeout = timeout
	})
}

// WithKeepAliveWhileIdle controls whether keep-alive pings are sent even
// when there are no active requests on the connection.
func WithKeepAliveWhileIdle(enabled bool) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.KeepAliveWhileIdle = enabled
	})
}

// WithAdaptiveWindow enables dynamic HTTP/2 flow control, overriding the
// initial window sizes.
func WithAdaptiveWindow(enabled bool) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.AdaptiveWindow = enabled
	})
}

// WithTLSConfig sets the TLS configuration used when connecting to
// endpoints. The config is cloned at construction time; later mutations of
// the caller's copy have no effect. If unset, connections are made in
// plaintext unless the sink adapter decides otherwise from the URL scheme.
func WithTLSConfig(config *tls.Config) TemplateOption {
	return templateOptionFunc(func(tuning *Tuning) {
		tuning.TLS = config
	})
}
