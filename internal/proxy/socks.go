// Package proxy builds the HTTP client used for cloud API traffic.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const timeout = 120 * time.Second

// NewHTTPClient returns a client that dials through the SOCKS5 proxy at addr.
// addr may be "host:port" or "socks5://[user:pass@]host:port". An empty addr
// yields a direct client.
func NewHTTPClient(addr string) (*http.Client, error) {
	if addr == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	hostport, auth, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}

	dialer, err := proxy.SOCKS5("tcp", hostport, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", hostport, err)
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

func parseAddr(addr string) (string, *proxy.Auth, error) {
	if !strings.Contains(addr, "://") {
		return addr, nil, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", nil, fmt.Errorf("proxy address %q: %w", addr, err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return "", nil, fmt.Errorf("proxy address %q: unsupported scheme %q", addr, u.Scheme)
	}
	if u.Host == "" {
		return "", nil, fmt.Errorf("proxy address %q: missing host", addr)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	return u.Host, auth, nil
}
