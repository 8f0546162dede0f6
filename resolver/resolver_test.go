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
	"encoding/binary"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

func TestAddressFamilyAffinity(t *testing.T) {
	t.Parallel()

	ip4Header := dnsmessage.ResourceHeader{
		Name:  dnsmessage.MustNewName("example.com."),
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
	}
	ip6Header := dnsmessage.ResourceHeader{
		Name:  dnsmessage.MustNewName("example.com."),
		Type:  dnsmessage.TypeAAAA,
		Class: dnsmessage.ClassINET,
	}
	ip4Address1 := netip.MustParseAddr("10.0.0.100")
	ip4Address2 := netip.MustParseAddr("10.0.0.101")
	ip6Address1 := netip.MustParseAddr("fe80::1")
	ip6Address2 := netip.MustParseAddr("fe80::2")
	mixed := []dnsmessage.Resource{
		{Header: ip4Header, Body: &dnsmessage.AResource{A: ip4Address1.As4()}},
		{Header: ip6Header, Body: &dnsmessage.AAAAResource{AAAA: ip6Address1.As16()}},
		{Header: ip4Header, Body: &dnsmessage.AResource{A: ip4Address2.As4()}},
		{Header: ip6Header, Body: &dnsmessage.AAAAResource{AAAA: ip6Address2.As16()}},
	}
	ip4Only := mixed[:1:1]
	ip6Only := mixed[1:2:2]

	testCases := []struct {
		name     string
		answers  []dnsmessage.Resource
		affinity AddressFamilyAffinity
		want     []netip.Addr
	}{
		{"mixed all families", mixed, AllFamilies, []netip.Addr{ip4Address1, ip4Address2, ip6Address1, ip6Address2}},
		{"mixed prefer v4", mixed, PreferIPv4, []netip.Addr{ip4Address1, ip4Address2}},
		{"mixed prefer v6", mixed, PreferIPv6, []netip.Addr{ip6Address1, ip6Address2}},
		{"v4 only prefer v6 falls back", ip4Only, PreferIPv6, []netip.Addr{ip4Address1}},
		{"v6 only prefer v4 falls back", ip6Only, PreferIPv4, []netip.Addr{ip6Address1}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			t.Cleanup(cancel)

			res := NewDNSResolver(newFakeDNSResolver(t, testCase.answers), "ip", testCase.affinity)
			addresses, ttl, err := res.Resolve(ctx, "example.com")
			require.NoError(t, err)
			assert.Zero(t, ttl)
			assert.ElementsMatch(t, testCase.want, addresses)
		})
	}
}

func TestDNSResolverUnmapsAddresses(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	// Go's resolver hands back IPv4 addresses embedded in IPv6. Even if
	// that behavior changes, the results must stay in canonical form so
	// that set diffs compare addresses structurally.
	res := NewDNSResolver(net.DefaultResolver, "ip", AllFamilies)
	addresses, _, err := res.Resolve(ctx, "::ffff:127.0.0.1")
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), addresses[0])
}

type fakeDNSDialer struct {
	t       *testing.T
	answers []dnsmessage.Resource
}

func (r *fakeDNSDialer) Dial(context.Context, string, string) (net.Conn, error) {
	clientConn, serverConn := net.Pipe()
	go func() {
		var requestLength uint16
		if err := binary.Read(serverConn, binary.BigEndian, &requestLength); err != nil {
			r.t.Errorf("error reading dns request length: %v", err)
			return
		}
		requestData := make([]byte, requestLength)
		if _, err := io.ReadFull(serverConn, requestData); err != nil {
			r.t.Errorf("error reading dns request: %v", err)
			return
		}
		request := &dnsmessage.Message{}
		if err := request.Unpack(requestData); err != nil {
			r.t.Errorf("error unpacking dns request: %v", err)
			return
		}
		answers := []dnsmessage.Resource{}
		for _, answer := range r.answers {
			if answer.Header.Type == request.Questions[0].Type {
				answers = append(answers, answer)
			}
		}
		response := &dnsmessage.Message{
			Header: dnsmessage.Header{
				ID:            request.ID,
				Response:      true,
				RCode:         dnsmessage.RCodeSuccess,
				Authoritative: true,
			},
			Questions: request.Questions,
			Answers:   answers,
		}
		responseData, err := response.Pack()
		if err != nil {
			r.t.Errorf("error packing dns response: %v", err)
			return
		}
		responseLength := uint16(len(responseData))
		if err := binary.Write(serverConn, binary.BigEndian, &responseLength); err != nil {
			r.t.Errorf("error writing dns response length: %v", err)
			return
		}
		if _, err := serverConn.Write(responseData); err != nil {
			r.t.Errorf("error writing dns response: %v", err)
			return
		}
		if err := serverConn.Close(); err != nil {
			r.t.Errorf("error closing dns server connection: %v", err)
			return
		}
	}()
	return clientConn, nil
}

func newFakeDNSResolver(t *testing.T, answers []dnsmessage.Resource) *net.Resolver {
	t.Helper()

	dialer := fakeDNSDialer{
		t:       t,
		answers: answers,
	}
	return &net.Resolver{
		PreferGo: true,
		Dial:     dialer.Dial,
	}
}
