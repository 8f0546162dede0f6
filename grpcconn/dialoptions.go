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
	"crypto/tls"
	"math"
	"net"
	"time"

	"github.com/Makinami/autobalance/endpoint"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const defaultKeepAliveTimeout = 20 * time.Second

// dialOptionsFromTuning maps the template's transport tuning onto dial
// options. Endpoint-level values that gRPC only accepts per connection
// (user agent, window sizes, keep-alive pings) are uniform across the pool
// anyway, since every endpoint is built from the same template.
func dialOptionsFromTuning(urlScheme string, tuning endpoint.Tuning) []grpc.DialOption {
	var options []grpc.DialOption

	if tuning.TLS != nil || urlScheme == "https" || urlScheme == "grpcs" {
		config := tuning.TLS
		if config == nil {
			config = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		options = append(options, grpc.WithTransportCredentials(credentials.NewTLS(config)))
	} else {
		options = append(options, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	options = append(options, grpc.WithContextDialer(newDialFunc(tuning)))

	if tuning.UserAgent != "" {
		options = append(options, grpc.WithUserAgent(tuning.UserAgent))
	}
	if tuning.Authority != "" {
		options = append(options, grpc.WithAuthority(tuning.Authority))
	}
	if !tuning.AdaptiveWindow {
		// Static window sizes switch off gRPC's BDP-based window scaling,
		// so they are only applied when adaptive flow control is not
		// requested.
		if tuning.InitialStreamWindowSize > 0 {
			options = append(options, grpc.WithInitialWindowSize(windowSize(tuning.InitialStreamWindowSize)))
		}
		if tuning.InitialConnWindowSize > 0 {
			options = append(options, grpc.WithInitialConnWindowSize(windowSize(tuning.InitialConnWindowSize)))
		}
	}
	if tuning.BufferSize > 0 {
		options = append(options,
			grpc.WithReadBufferSize(tuning.BufferSize),
			grpc.WithWriteBufferSize(tuning.BufferSize),
		)
	}
	if tuning.KeepAliveInterval > 0 {
		timeout := tuning.KeepAliveTimeout
		if timeout == 0 {
			timeout = defaultKeepAliveTimeout
		}
		options = append(options, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                tuning.KeepAliveInterval,
			Timeout:             timeout,
			PermitWithoutStream: tuning.KeepAliveWhileIdle,
		}))
	}
	options = append(options, grpc.WithConnectParams(grpc.ConnectParams{
		Backoff:           backoff.DefaultConfig,
		MinConnectTimeout: tuning.ConnectTimeout,
	}))

	if interceptors := unaryInterceptors(tuning); len(interceptors) > 0 {
		options = append(options, grpc.WithChainUnaryInterceptor(interceptors...))
	}
	return options
}

// windowSize narrows a tuning window size to gRPC's int32 dial options. The
// conversion must not wrap negative, since gRPC silently ignores non-positive
// window sizes.
func windowSize(size uint32) int32 {
	if size > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(size)
}

func newDialFunc(tuning endpoint.Tuning) func(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   tuning.ConnectTimeout,
		KeepAlive: tuning.TCPKeepAlive,
	}
	return func(ctx context.Context, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if !tuning.TCPNoDelay {
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				if err := tcpConn.SetNoDelay(false); err != nil {
					conn.Close()
					return nil, err
				}
			}
		}
		return conn, nil
	}
}
