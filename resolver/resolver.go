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

// Package resolver provides single-shot name resolution for the
// reconciliation loop. Resolvers are strategy objects injected at channel
// construction, so tests can script resolution outcomes without any global
// state.
package resolver

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// AddressFamilyAffinity is an option that allows control over the preference
// for which addresses to use, based on their address family.
type AddressFamilyAffinity int

const (
	// AllFamilies will result in all addresses being used, regardless of
	// their address family.
	AllFamilies AddressFamilyAffinity = iota

	// PreferIPv4 will result in only IPv4 addresses being used, if any
	// IPv4 addresses are present. If no IPv4 addresses are resolved, then
	// all addresses will be used.
	PreferIPv4

	// PreferIPv6 will result in only IPv6 addresses being used, if any
	// IPv6 addresses are present. If no IPv6 addresses are resolved, then
	// all addresses will be used.
	PreferIPv6
)

// Resolver is an interface for types that provide single-shot name
// resolution. The reconciliation loop calls Resolve once per tick.
type Resolver interface {
	// Resolve resolves the given domain name once. The returned addresses
	// carry no ordering requirement and may be empty: an empty result is a
	// valid resolution of zero endpoints, not an error. The second return
	// value is the TTL of the result, or 0 if no TTL is known.
	//
	// Resolve must be safely callable repeatedly. It should honor
	// cancellation of the given context.
	Resolve(ctx context.Context, domain string) (addresses []netip.Addr, ttl time.Duration, err error)
}

// NewDNSResolver creates a resolver backed by the given [net.Resolver]. The
// network parameter selects the kind of addresses to look up and must be one
// of "ip", "ip4" or "ip6". Because net.Resolver does
// not expose record TTL values, this resolver always reports a TTL of 0 and
// the loop falls back to its configured poll interval. The affinity value
// can be used to prefer either IPv4 or IPv6 addresses in cases where both A
// and AAAA records are present.
func NewDNSResolver(
	resolver *net.Resolver,
	network string,
	affinity AddressFamilyAffinity,
) Resolver {
	return &dnsResolver{
		resolver: resolver,
		network:  network,
		affinity: affinity,
	}
}

type dnsResolver struct {
	resolver *net.Resolver
	network  string
	affinity AddressFamilyAffinity
}

func (r *dnsResolver) Resolve(ctx context.Context, domain string) ([]netip.Addr, time.Duration, error) {
	addresses, err := r.resolver.LookupNetIP(ctx, r.network, domain)
	if err != nil {
		return nil, 0, err
	}
	for i, address := range addresses {
		addresses[i] = address.Unmap()
	}
	return filterByAffinity(addresses, r.affinity), 0, nil
}

func filterByAffinity(addresses []netip.Addr, affinity AddressFamilyAffinity) []netip.Addr {
	switch affinity {
	case AllFamilies:
	case PreferIPv4:
		ip4Addresses := addresses[:0]
		for _, address := range addresses {
			if address.Is4() || address.Is4In6() {
				ip4Addresses = append(ip4Addresses, address)
			}
		}
		if len(ip4Addresses) > 0 {
			addresses = ip4Addresses
		}
	case PreferIPv6:
		ip6Addresses := addresses[:0]
		for _, address := range addresses {
			if address.Is6() && !address.Is4In6() {
				ip6Addresses = append(ip6Addresses, address)
			}
		}
		if len(ip6Addresses) > 0 {
			addresses = ip6Addresses
		}
	}
	return addresses
}
