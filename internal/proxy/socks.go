// Package proxy builds HTTP clients and websocket dialers that optionally
// go through a SOCKS5 proxy.
package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// dialer returns nil when socksAddr is empty, meaning a direct connection.
func dialer(socksAddr string) (dialFunc, error) {
	if socksAddr == "" {
		return nil, nil
	}

	d, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}

// NewHTTPClient returns a client that dials through socksAddr, or directly
// when it is empty.
func NewHTTPClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	dial, err := dialer(socksAddr)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if dial != nil {
		transport.Proxy = nil
		transport.DialContext = dial
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// NewWebsocketDialer returns a websocket dialer routed like NewHTTPClient.
func NewWebsocketDialer(socksAddr string) (*websocket.Dialer, error) {
	dial, err := dialer(socksAddr)
	if err != nil {
		return nil, err
	}

	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		NetDialContext:   dial,
	}, nil
}
