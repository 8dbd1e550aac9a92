package handlers

import (
	"github.com/caddyserver/caddy/v2"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// A Handler that responds to a DHCPv4 request. ddhcp serves a single
// IPv4 subnet per node (see core.Config), so unlike its ancestor this
// chain carries no DHCPv6 path.
//
// The next handler will never be nil, but may be a no-op handler.
// Handlers which act as middleware should call next so as to
// propagate the request down the chain properly. Handlers which act
// as responders (content origins) need not invoke the next handler,
// since the last handler in the chain should be the first to write
// the response.
//
// If any handler encounters an error, it should be returned for proper
// handling. Return values should be propagated down the middleware chain
// by returning it unchanged. Returned errors should not be re-wrapped.
type Handler interface {
	Handle4(req, resp *dhcpv4.DHCPv4, next func() error) error
}

// A HandlerModule is a Handler that also implements
// the caddy.Module and caddy.Provisioner interfaces.
type HandlerModule interface {
	caddy.Module
	caddy.Provisioner
	Handler
}
