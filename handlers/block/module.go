// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package block

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"go.uber.org/zap"

	"github.com/ddhcp-project/ddhcpd/core"
	"github.com/ddhcp-project/ddhcpd/handlers"
)

// Module allocates addresses out of the blocks a ddhcp node currently
// owns. It is the DHCPv4 front-end of the block-ownership state
// machine: DISCOVER/REQUEST/RELEASE map onto core.Table's
// AcquireOffer/Confirm/ReleaseAddress calls.
//
// Node names the node of the "ddhcp" app this handler is attached to;
// the handler looks up that node's *core.Table through the app at
// provision time, so the handler itself holds no ownership state.
type Module struct {
	Node             string         `json:"node"`
	DefaultLeaseTime caddy.Duration `json:"defaultLeaseTime,omitempty"`

	table  *core.Table
	logger *zap.Logger
}

// nodeTableProvider is implemented by the ddhcp app. It is declared
// here, rather than imported from the root package, so that this
// handler does not import the app that in turn registers it.
type nodeTableProvider interface {
	NodeTable(name string) (*core.Table, bool)
}

// CaddyModule returns the Caddy module information.
func (Module) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "dhcp.handlers.block",
		New: func() caddy.Module { return new(Module) },
	}
}

func (m *Module) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()
	appIface, err := ctx.App("ddhcp")
	if err != nil {
		return fmt.Errorf("block: loading ddhcp app: %w", err)
	}
	provider, ok := appIface.(nodeTableProvider)
	if !ok {
		return fmt.Errorf("block: ddhcp app does not expose node tables")
	}
	table, ok := provider.NodeTable(m.Node)
	if !ok {
		return fmt.Errorf("block: no such node %q", m.Node)
	}
	m.table = table
	if m.DefaultLeaseTime == 0 {
		m.DefaultLeaseTime = caddy.Duration(1 * time.Hour)
	}
	return nil
}

func (m *Module) Handle4(req, resp *dhcpv4.DHCPv4, next func() error) error {
	switch req.MessageType() {
	case dhcpv4.MessageTypeDiscover:
		return m.handleDiscover(req, resp, next)
	case dhcpv4.MessageTypeRequest:
		return m.handleRequest(req, resp, next)
	case dhcpv4.MessageTypeRelease:
		return m.handleRelease(req, next)
	default:
		return next()
	}
}

func (m *Module) handleDiscover(req, resp *dhcpv4.DHCPv4, next func() error) error {
	addr, err := m.table.AcquireOffer(req.ClientHWAddr, xid(req))
	if err != nil {
		m.logger.Warn("no address available to offer", zap.Stringer("mac", req.ClientHWAddr), zap.Error(err))
		resp.UpdateOption(dhcpv4.OptMessageType(dhcpv4.MessageTypeNak))
		return nil
	}
	resp.YourIPAddr = addr
	resp.UpdateOption(dhcpv4.OptIPAddressLeaseTime(time.Duration(m.DefaultLeaseTime)))
	m.logger.Info("offering address", zap.Stringer("mac", req.ClientHWAddr), zap.Stringer("addr", addr))
	return next()
}

func (m *Module) handleRequest(req, resp *dhcpv4.DHCPv4, next func() error) error {
	addr := req.RequestedIPAddress()
	if addr == nil {
		addr = req.ClientIPAddr
	}
	err := m.table.Confirm(req.ClientHWAddr, xid(req), addr, time.Duration(m.DefaultLeaseTime))
	if err != nil {
		m.logger.Warn("rejecting request", zap.Stringer("mac", req.ClientHWAddr), zap.Stringer("addr", addr), zap.Error(err))
		resp.UpdateOption(dhcpv4.OptMessageType(dhcpv4.MessageTypeNak))
		return nil
	}
	resp.YourIPAddr = addr
	resp.UpdateOption(dhcpv4.OptIPAddressLeaseTime(time.Duration(m.DefaultLeaseTime)))
	m.logger.Info("confirmed lease", zap.Stringer("mac", req.ClientHWAddr), zap.Stringer("addr", addr))
	return next()
}

func (m *Module) handleRelease(req *dhcpv4.DHCPv4, next func() error) error {
	addr := req.ClientIPAddr
	if err := m.table.ReleaseAddress(addr); err != nil {
		m.logger.Warn("release of unknown address", zap.Stringer("addr", addr), zap.Error(err))
	} else {
		m.logger.Info("released address", zap.Stringer("mac", req.ClientHWAddr), zap.Stringer("addr", addr))
	}
	return next()
}

// xid extracts the DHCP transaction ID as a uint32 for use as the lease
// table's offer/confirm correlation key.
func xid(req *dhcpv4.DHCPv4) uint32 {
	return binary.BigEndian.Uint32(req.TransactionID[:])
}

// Interfaces guards
var (
	_ handlers.HandlerModule = (*Module)(nil)
)
