// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package serverid

import (
	"fmt"
	"net"

	"github.com/caddyserver/caddy/v2"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"go.uber.org/zap"

	"github.com/ddhcp-project/ddhcpd/handlers"
)

type Module struct {
	Id string `json:"id,omitempty"`

	id     net.IP
	logger *zap.Logger
}

// CaddyModule returns the Caddy module information.
func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.serverid",
		New: func() caddy.Module { return new(Module) },
	}
}

// Provision is run immediately after this handler is being loaded.
func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()

	if m.Id != "" {
		ip := net.ParseIP(m.Id)
		if ip.To4() == nil {
			return fmt.Errorf("%s is not a valid IPv4 address", m.Id)
		}
		m.id = ip
	}

	return nil
}

// Handle4 handles DHCPv4 packets for this plugin.
func (m *Module) Handle4(req, resp *dhcpv4.DHCPv4, next func() error) error {
	if m.id == nil {
		return next()
	}
	if req.OpCode != dhcpv4.OpcodeBootRequest {
		m.logger.Warn("not a BootRequest, ignoring")
		return next()
	}
	if req.ServerIPAddr != nil &&
		!req.ServerIPAddr.Equal(net.IPv4zero) &&
		!req.ServerIPAddr.Equal(m.id) {
		// This request is not for us, drop it.
		m.logger.Info(fmt.Sprintf("requested server ID does not match this server's ID. Got %v, want %v", req.ServerIPAddr, m.id))
		return nil
	}
	resp.UpdateOption(dhcpv4.OptServerIdentifier(m.id))
	return next()
}

// Interfaces guards
var (
	_ handlers.HandlerModule = (*Module)(nil)
)
