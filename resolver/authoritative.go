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

package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// NewAuthoritativeResolver creates a resolver that queries the given DNS
// server directly instead of going through the system resolver. Unlike
// [NewDNSResolver], it sees the real record TTLs, so the reconciliation loop
// can re-resolve exactly when the records expire rather than on a fixed
// guess. The server address may omit the port, in which case 53 is assumed.
func NewAuthoritativeResolver(server string, affinity AddressFamilyAffinity) Resolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &authoritativeResolver{
		client:   &dns.Client{Net: "udp"},
		server:   server,
		affinity: affinity,
	}
}

type authoritativeResolver struct {
	client   *dns.Client
	server   string
	affinity AddressFamilyAffinity
}

func (r *authoritativeResolver) Resolve(ctx context.Context, domain string) ([]netip.Addr, time.Duration, error) {
	name := dns.Fqdn(domain)
	var answers []dns.RR
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		query := new(dns.Msg)
		query.SetQuestion(name, qtype)
		response, _, err := r.client.ExchangeContext(ctx, query, r.server)
		if err != nil {
			return nil, 0, fmt.Errorf("query %s %s: %w", domain, dns.TypeToString[qtype], err)
		}
		if response.Rcode != dns.RcodeSuccess {
			return nil, 0, fmt.Errorf("query %s %s: %s", domain, dns.TypeToString[qtype], dns.RcodeToString[response.Rcode])
		}
		answers = append(answers, response.Answer...)
	}
	addresses, ttl := addrsFromAnswers(answers)
	return filterByAffinity(addresses, r.affinity), ttl, nil
}

// addrsFromAnswers extracts the A and AAAA addresses from the given answer
// records. The returned TTL is the smallest TTL among them, so the whole
// result set expires together.
func addrsFromAnswers(answers []dns.RR) ([]netip.Addr, time.Duration) {
	var addresses []netip.Addr
	var minTTL uint32
	first := true
	for _, answer := range answers {
		var ip net.IP
		switch record := answer.(type) {
		case *dns.A:
			ip = record.A
		case *dns.AAAA:
			ip = record.AAAA
		default:
			continue
		}
		address, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		addresses = append(addresses, address.Unmap())
		// A TTL of 0 is a legal record TTL, so it cannot double as the
		// "nothing seen yet" sentinel.
		if ttl := answer.Header().Ttl; first || ttl < minTTL {
			minTTL = ttl
			first = false
		}
	}
	return addresses, time.Duration(minTTL) * time.Second
}
