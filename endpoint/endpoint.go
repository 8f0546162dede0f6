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

// Package endpoint provides the endpoint template and the connection
// descriptors it produces. A template is built once, from a URL whose host
// is a resolvable domain name, and thereafter deterministically substitutes
// IP addresses for that host to produce immutable [Endpoint] values that a
// change sink can open connections with.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

var (
	// ErrHostMissing indicates that the template URL has no host component
	// at all, such as a mailto: URL.
	ErrHostMissing = errors.New("endpoint URL has no host")

	// ErrAlreadyIPAddress indicates that the template URL's host is a
	// literal IP address, so there is nothing to resolve. Callers should
	// skip the reconciliation loop and install a single static endpoint
	// built with [NewStatic].
	ErrAlreadyIPAddress = errors.New("endpoint URL host is already an IP address")

	// ErrInconvertible indicates that the URL cannot survive having its
	// host substituted by an IP address.
	ErrInconvertible = errors.New("endpoint URL cannot be used as a template")

	// ErrNotIPAddress indicates that a URL given to [NewStatic] has a
	// domain host rather than a literal IP address.
	ErrNotIPAddress = errors.New("endpoint URL host is not an IP address")
)

// Template holds a validated URL plus transport tuning values and builds one
// connection descriptor per resolved IP address. A template is immutable
// after construction and may be freely shared by reference.
type Template struct {
	url    *url.URL
	tuning Tuning
}

// NewTemplate validates the given URL and returns a template for it. The
// URL's host must be a domain name: construction fails with [ErrHostMissing]
// if there is no host, [ErrAlreadyIPAddress] if the host is a literal IP
// (nothing to resolve), and [ErrInconvertible] if the URL cannot be parsed
// or cannot round-trip through host substitution. All checks happen here so
// that [Template.Build] has no failure path.
func NewTemplate(rawURL string, options ...TemplateOption) (*Template, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInconvertible, err)
	}
	if parsed.Host == "" {
		return nil, ErrHostMissing
	}
	if _, err := netip.ParseAddr(parsed.Hostname()); err == nil {
		return nil, ErrAlreadyIPAddress
	}
	if parsed.Opaque != "" || parsed.Scheme == "" {
		return nil, ErrInconvertible
	}
	// Substitute a probe address and re-parse, to prove that Build cannot
	// produce a URL that no longer parses to the same shape.
	probe := netip.MustParseAddr("::1")
	reparsed, err := url.Parse(substituteHost(parsed, probe))
	if err != nil || reparsed.Hostname() != probe.String() {
		return nil, ErrInconvertible
	}

	return &Template{url: parsed, tuning: newTuning(options)}, nil
}

// Domain returns the URL's host as a domain name. It is always non-empty
// for a successfully constructed template.
func (t *Template) Domain() string {
	return t.url.Hostname()
}

// URL returns a copy of the validated template URL.
func (t *Template) URL() *url.URL {
	clone := *t.url
	return &clone
}

// Tuning returns the transport tuning values this template applies to every
// endpoint it builds.
func (t *Template) Tuning() Tuning {
	return t.tuning
}

// Build produces the connection descriptor for the given IP address. It is a
// pure function: the same address always yields the same descriptor, and no
// option application order can affect the result since each tuning value is
// an independent field. Build never fails; the stricter checks happen in
// [NewTemplate].
func (t *Template) Build(address netip.Addr) Endpoint {
	address = address.Unmap()
	return Endpoint{
		Key:       address,
		URL:       substituteHost(t.url, address),
		HostPort:  joinHostPort(address, t.url.Port(), t.url.Scheme),
		Authority: authority(t.tuning, t.url),
		Tuning:    t.tuning,
	}
}

// NewStatic builds the single descriptor for a URL whose host is already a
// literal IP address. It is the companion to [ErrAlreadyIPAddress]: URLs
// that cannot be templates because there is nothing to resolve still get
// one well-formed endpoint.
func NewStatic(rawURL string, options ...TemplateOption) (Endpoint, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrInconvertible, err)
	}
	if parsed.Host == "" {
		return Endpoint{}, ErrHostMissing
	}
	address, err := netip.ParseAddr(parsed.Hostname())
	if err != nil {
		return Endpoint{}, ErrNotIPAddress
	}

	tuning := newTuning(options)
	address = address.Unmap()
	return Endpoint{
		Key:       address,
		URL:       parsed.String(),
		HostPort:  joinHostPort(address, parsed.Port(), parsed.Scheme),
		Authority: authority(tuning, parsed),
		Tuning:    tuning,
	}, nil
}

// Endpoint is an immutable connection descriptor: everything a change sink
// needs to open a connection to one resolved address. Descriptors are
// replaced wholesale (remove then insert), never mutated.
type Endpoint struct {
	// Key uniquely identifies this endpoint within its pool. It is the
	// resolved IP address, unmapped so that a 4-in-6 address and its IPv4
	// form compare equal.
	Key netip.Addr

	// URL is the template URL with the host literal replaced by Key.
	URL string

	// HostPort is the "host:port" dial target. When the template URL
	// carries no explicit port, a default is derived from the scheme.
	HostPort string

	// Authority is the value to present to the server (TLS server name,
	// HTTP/2 :authority). Defaults to the template URL's host so that
	// certificate verification keeps working against the domain name even
	// though the dial target is an IP.
	Authority string

	// Tuning carries the transport tuning values fixed at template
	// construction time.
	Tuning Tuning
}

func substituteHost(u *url.URL, address netip.Addr) string {
	clone := *u
	host := address.String()
	if address.Is6() {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}
	clone.Host = host
	return clone.String()
}

func joinHostPort(address netip.Addr, port, scheme string) string {
	if port == "" {
		switch scheme {
		case "https", "grpcs":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(address.String(), port)
}

func authority(tuning Tuning, u *url.URL) string {
	if tuning.Authority != "" {
		return tuning.Authority
	}
	return u.Host
}
