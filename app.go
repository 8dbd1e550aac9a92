// Package ddhcp implements a Caddy application module that runs the
// ddhcp distributed DHCP coordination protocol: cooperating nodes
// share an IPv4 subnet, carve it into blocks, and negotiate block
// ownership over an IPv6 multicast claim protocol (see package core).
// Within a block it owns, a node serves DHCP leases to clients.
package ddhcp

import (
	"fmt"
	"net"

	"github.com/caddyserver/caddy/v2"
	"github.com/insomniacslk/dhcp/dhcpv4"

	"github.com/ddhcp-project/ddhcpd/core"
	"github.com/ddhcp-project/ddhcpd/handlers"
	"github.com/ddhcp-project/ddhcpd/handlers/autoconfigure"
	"github.com/ddhcp-project/ddhcpd/handlers/block"
	"github.com/ddhcp-project/ddhcpd/handlers/dns"
	"github.com/ddhcp-project/ddhcpd/handlers/ipv6only"
	"github.com/ddhcp-project/ddhcpd/handlers/leasetime"
	"github.com/ddhcp-project/ddhcpd/handlers/messagelog"
	"github.com/ddhcp-project/ddhcpd/handlers/mtu"
	"github.com/ddhcp-project/ddhcpd/handlers/nbp"
	"github.com/ddhcp-project/ddhcpd/handlers/netmask"
	"github.com/ddhcp-project/ddhcpd/handlers/router"
	"github.com/ddhcp-project/ddhcpd/handlers/searchdomains"
	"github.com/ddhcp-project/ddhcpd/handlers/serverid"
	"github.com/ddhcp-project/ddhcpd/handlers/staticroute"
)

func init() {
	// register this app module
	caddy.RegisterModule(App{})

	// register handler modules
	caddy.RegisterModule(autoconfigure.Module{})
	caddy.RegisterModule(block.Module{})
	caddy.RegisterModule(dns.Module{})
	caddy.RegisterModule(ipv6only.Module{})
	caddy.RegisterModule(leasetime.Module{})
	caddy.RegisterModule(messagelog.Module{})
	caddy.RegisterModule(mtu.Module{})
	caddy.RegisterModule(nbp.Module{})
	caddy.RegisterModule(netmask.Module{})
	caddy.RegisterModule(router.Module{})
	caddy.RegisterModule(searchdomains.Module{})
	caddy.RegisterModule(serverid.Module{})
	caddy.RegisterModule(staticroute.Module{})
}

// App is the "ddhcp" Caddy app. It holds one Node per configured
// subnet, exactly as the teacher's App holds one dhcpServer per
// configured Server.
type App struct {
	Nodes map[string]*NodeConfig `json:"nodes,omitempty"`

	nodes  []*Node
	byName map[string]*Node
}

// CaddyModule returns the Caddy module information.
func (App) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "ddhcp",
		New: func() caddy.Module { return new(App) },
	}
}

func (app *App) Provision(ctx caddy.Context) error {
	app.byName = make(map[string]*Node, len(app.Nodes))
	for name, cfg := range app.Nodes {
		logger := ctx.Logger().Named(name)
		node, err := newNode(name, *cfg, ctx, logger)
		if err != nil {
			return err
		}
		app.nodes = append(app.nodes, node)
		app.byName[name] = node
	}
	return nil
}

// NodeTable looks up the core.Table belonging to one of this app's
// nodes by name. handlers/block calls this through a small structural
// interface (see its nodeTableProvider) rather than importing this
// package, since this package already imports handlers/block to
// register it.
func (app *App) NodeTable(name string) (*core.Table, bool) {
	node, ok := app.byName[name]
	if !ok {
		return nil, false
	}
	return node.Table(), true
}

// Start starts every node.
func (app *App) Start() error {
	for _, node := range app.nodes {
		if err := node.Start(); err != nil {
			return fmt.Errorf("starting node: %w", err)
		}
	}
	return nil
}

// Stop stops every node.
func (app *App) Stop() error {
	for _, node := range app.nodes {
		if err := node.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// compileHandlerChain sets up all the handlers by loading the handler
// modules and compiling them in a chain.
func compileHandlerChain(ctx caddy.Context, cfg *NodeConfig) (handlers.Handler, error) {
	handlersRaw, err := ctx.LoadModule(cfg, "HandlersRaw")
	if err != nil {
		return nil, fmt.Errorf("loading handler modules: %v", err)
	}

	var handlersTyped []handlers.Handler
	for _, h := range handlersRaw.([]any) {
		handlersTyped = append(handlersTyped, h.(handlers.Handler))
	}

	return handlerChain{handlers: handlersTyped}, nil
}

// handlerChain calls a chain of handlers in their configured order,
// wrapping them into closures from the last handler back to the first.
type handlerChain struct {
	handlers []handlers.Handler
}

func (c handlerChain) Handle4(req, resp *dhcpv4.DHCPv4, next func() error) error {
	for i := len(c.handlers) - 1; i >= 0; i-- {
		// copy the next handler (it's a func value, so it's just
		// a very lightweight copy of a pointer); this is important
		// because this is a closure to the func below, which
		// re-assigns the value as it compiles the handler chain stack;
		// if we don't make this copy, we'd affect the underlying
		// pointer for all future request (yikes); we could
		// alternatively solve this by moving the func below out of
		// this closure and into a standalone package-level func,
		// but I just thought this made more sense
		nextCopy := next
		next = func() error {
			return c.handlers[i].Handle4(req, resp, nextCopy)
		}
	}
	return next()
}

func parseAddresses(addresses []string) ([]*net.UDPAddr, error) {
	var result []*net.UDPAddr
	for _, address := range addresses {
		var (
			addr *net.UDPAddr
			err  error
		)
		if ip := net.ParseIP(address); ip != nil {
			addr = &net.UDPAddr{IP: ip, Port: dhcpv4.ServerPort}
		} else {
			addr, err = net.ResolveUDPAddr("udp", address)
			if err != nil {
				return nil, err
			}
			if addr.IP == nil {
				return nil, fmt.Errorf("only port specified, please also specify an IP address: %s", address)
			}
		}
		result = append(result, addr)
	}
	return result, nil
}

// Interfaces guards
var (
	_ caddy.App         = (*App)(nil)
	_ caddy.Provisioner = (*App)(nil)

	_ handlers.Handler = (*handlerChain)(nil)
)
