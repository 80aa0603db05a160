// Package proxy builds the HTTP client shared by every cloud API client.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

const defaultTimeout = 120 * time.Second

// NewHTTPClient returns a client that dials through the SOCKS5 proxy at socksAddr,
// or a direct client when socksAddr is empty.
func NewHTTPClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if socksAddr == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer %q: %w", socksAddr, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
