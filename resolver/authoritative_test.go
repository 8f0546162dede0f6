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
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthoritativeResolver(t *testing.T) {
	t.Parallel()

	server, addr := startFakeDNSServer(t, func(w dns.ResponseWriter, request *dns.Msg) {
		response := new(dns.Msg)
		response.SetReply(request)
		name := request.Question[0].Name
		switch request.Question[0].Qtype {
		case dns.TypeA:
			response.Answer = append(response.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 30},
				A:   net.ParseIP("10.0.0.1"),
			})
		case dns.TypeAAAA:
			response.Answer = append(response.Answer, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 15},
				AAAA: net.ParseIP("2001:db8::1"),
			})
		}
		if err := w.WriteMsg(response); err != nil {
			t.Errorf("error writing dns response: %v", err)
		}
	})
	t.Cleanup(func() {
		require.NoError(t, server.Shutdown())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	res := NewAuthoritativeResolver(addr, AllFamilies)
	addresses, ttl, err := res.Resolve(ctx, "example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []netip.Addr{
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("2001:db8::1"),
	}, addresses)
	// The result set expires together, on the smallest answer TTL.
	assert.Equal(t, 15*time.Second, ttl)
}

func TestAuthoritativeResolverServerFailure(t *testing.T) {
	t.Parallel()

	server, addr := startFakeDNSServer(t, func(w dns.ResponseWriter, request *dns.Msg) {
		response := new(dns.Msg)
		response.SetRcode(request, dns.RcodeServerFailure)
		if err := w.WriteMsg(response); err != nil {
			t.Errorf("error writing dns response: %v", err)
		}
	})
	t.Cleanup(func() {
		require.NoError(t, server.Shutdown())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	res := NewAuthoritativeResolver(addr, AllFamilies)
	_, _, err := res.Resolve(ctx, "example.com")
	require.Error(t, err)
	assert.ErrorContains(t, err, dns.RcodeToString[dns.RcodeServerFailure])
}

func TestAddrsFromAnswers(t *testing.T) {
	t.Parallel()

	header := func(rrtype uint16, ttl uint32) dns.RR_Header {
		return dns.RR_Header{Name: "example.com.", Rrtype: rrtype, Class: dns.ClassINET, Ttl: ttl}
	}
	answers := []dns.RR{
		&dns.A{Hdr: header(dns.TypeA, 300), A: net.ParseIP("10.0.0.1")},
		&dns.AAAA{Hdr: header(dns.TypeAAAA, 60), AAAA: net.ParseIP("2001:db8::1")},
		// CNAME records in the answer section carry no address.
		&dns.CNAME{Hdr: header(dns.TypeCNAME, 10), Target: "other.example.com."},
	}

	addresses, ttl := addrsFromAnswers(answers)
	assert.ElementsMatch(t, []netip.Addr{
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("2001:db8::1"),
	}, addresses)
	assert.Equal(t, 60*time.Second, ttl)

	addresses, ttl = addrsFromAnswers(nil)
	assert.Empty(t, addresses)
	assert.Zero(t, ttl)
}

func TestAddrsFromAnswersZeroTTL(t *testing.T) {
	t.Parallel()

	record := func(ttl uint32) dns.RR {
		return &dns.A{
			Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
			A:   net.ParseIP("10.0.0.1"),
		}
	}

	// A record TTL of 0 is the smallest possible value and must win
	// regardless of where it appears in the answer section.
	_, ttl := addrsFromAnswers([]dns.RR{record(0), record(300)})
	assert.Zero(t, ttl)
	_, ttl = addrsFromAnswers([]dns.RR{record(300), record(0)})
	assert.Zero(t, ttl)
}

func startFakeDNSServer(t *testing.T, handler dns.HandlerFunc) (*dns.Server, string) {
	t.Helper()

	packetConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &dns.Server{PacketConn: packetConn, Handler: handler}
	go func() {
		if err := server.ActivateAndServe(); err != nil {
			t.Errorf("dns server exited: %v", err)
		}
	}()
	return server, packetConn.LocalAddr().String()
}
