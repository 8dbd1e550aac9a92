package ddhcp

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/google/uuid"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/server4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ddhcp-project/ddhcpd/core"
	"github.com/ddhcp-project/ddhcpd/handlers"
	"github.com/ddhcp-project/ddhcpd/mcast"
)

// NodeConfig is the per-subnet configuration of one ddhcp participant,
// analogous to the teacher's Server but carrying the ddhcp coordination
// parameters from core.Config alongside the DHCP listener and handler
// chain configuration.
type NodeConfig struct {
	// Interface is the network interface this node serves DHCP on and
	// joins the multicast coordination group on.
	Interface string `json:"interface"`

	// Addresses are the DHCPv4 listener addresses. Defaults to
	// 0.0.0.0:67.
	Addresses []string `json:"addresses,omitempty"`

	// Prefix and PrefixLen describe the IPv4 subnet this node
	// participates in.
	Prefix    string `json:"prefix"`
	PrefixLen int    `json:"prefix_len"`

	// BlockSize is the number of addresses per block (power of two).
	BlockSize uint32 `json:"block_size"`

	// NodeID is this node's stable 64-bit identifier. If zero, a
	// random one is generated at Provision time.
	NodeID uint64 `json:"node_id,omitempty"`

	TentativeTimeout  caddy.Duration `json:"tentative_timeout,omitempty"`
	BlockTimeout      caddy.Duration `json:"block_timeout,omitempty"`
	TickInterval      caddy.Duration `json:"tick_interval,omitempty"`
	SpareBlocksNeeded int            `json:"spare_blocks_needed,omitempty"`

	MulticastGroup string `json:"multicast_group,omitempty"`
	MulticastPort  int    `json:"multicast_port,omitempty"`

	ControlSocket string `json:"control_socket,omitempty"`

	Logs bool `json:"logs,omitempty"`

	// HandlersRaw is the DHCPv4 handler chain for this node, including
	// the handlers/block module that fronts this node's core.Table.
	HandlersRaw []json.RawMessage `json:"handle,omitempty" caddy:"namespace=dhcp.handlers inline_key=handler"`
}

const defaultTickInterval = 5 * time.Second
const inboundQueueSize = 64

// Node owns one subnet's block table, the goroutines that drive it,
// and the DHCPv4 listener(s) serving leases out of it. Per spec.md §5,
// exactly two long-lived goroutines mutate or read shared state beyond
// the DHCP listener: the multicast reader (decode + enqueue only) and
// the ticker (all core.Table mutation). They communicate over a
// bounded channel; inbound is never touched by the DHCP listener.
type Node struct {
	name   string
	cfg    NodeConfig
	table  *core.Table
	conn   *mcast.Conn
	ctl    *ctlSocket
	iface  *net.Interface
	logger *zap.Logger

	handler   handlers.Handler
	accessLog *zap.Logger
	servers4  []*server4.Server

	inbound  chan inboundPacket
	tickStop chan struct{}
	group    *errgroup.Group
}

type inboundPacket struct {
	packet *mcast.Packet
}

func newNode(name string, cfg NodeConfig, ctx caddy.Context, logger *zap.Logger) (*Node, error) {
	if cfg.NodeID == 0 {
		id := uuid.New()
		cfg.NodeID = binary.BigEndian.Uint64(id[:8])
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = caddy.Duration(defaultTickInterval)
	}
	if cfg.MulticastGroup == "" {
		cfg.MulticastGroup = mcast.DefaultGroup.String()
	}
	if cfg.MulticastPort == 0 {
		cfg.MulticastPort = mcast.DefaultPort
	}

	prefix := net.ParseIP(cfg.Prefix)
	if prefix == nil {
		return nil, fmt.Errorf("node %s: invalid prefix %q", name, cfg.Prefix)
	}
	numberOfBlocks := uint32(1<<uint(32-cfg.PrefixLen)) / cfg.BlockSize

	tableCfg := core.Config{
		Prefix:            prefix,
		PrefixLen:         cfg.PrefixLen,
		BlockSize:         cfg.BlockSize,
		NumberOfBlocks:    numberOfBlocks,
		NodeID:            cfg.NodeID,
		TentativeTimeout:  time.Duration(cfg.TentativeTimeout),
		BlockTimeout:      time.Duration(cfg.BlockTimeout),
		SpareBlocksNeeded: cfg.SpareBlocksNeeded,
	}
	table, err := core.NewTable(tableCfg, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", name, err)
	}

	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("node %s: interface %s: %w", name, cfg.Interface, err)
	}

	handler, err := compileHandlerChain(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", name, err)
	}

	n := &Node{
		name:      name,
		cfg:       cfg,
		table:     table,
		iface:     iface,
		logger:    logger,
		handler:   handler,
		accessLog: logger.Named("access"),
		inbound:   make(chan inboundPacket, inboundQueueSize),
		tickStop:  make(chan struct{}),
	}
	return n, nil
}

// Table exposes this node's block table, e.g. for handlers/block's
// Provision lookup.
func (n *Node) Table() *core.Table {
	return n.table
}

// Start joins the multicast group, opens the control socket, starts
// the DHCPv4 listener(s), and launches the reader and ticker
// goroutines, all collected under one errgroup.Group so Stop can wait
// for every one of them to actually exit.
func (n *Node) Start() error {
	mcastGroup := net.ParseIP(n.cfg.MulticastGroup)
	conn, err := mcast.Dial(n.iface, mcastGroup, n.cfg.MulticastPort)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.name, err)
	}
	n.conn = conn

	if n.cfg.ControlSocket != "" {
		ctl, err := listenCtlSocket(n.cfg.ControlSocket, n.table, n.logger.Named("ctl"))
		if err != nil {
			conn.Close()
			return fmt.Errorf("node %s: control socket: %w", n.name, err)
		}
		n.ctl = ctl
	}

	addresses, err := parseAddresses(n.cfg.Addresses)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.name, err)
	}
	if len(addresses) == 0 {
		addresses = append(addresses, &net.UDPAddr{IP: net.IPv4zero, Port: dhcpv4.ServerPort})
	}
	for _, addr := range addresses {
		server, err := server4.NewServer(
			n.cfg.Interface,
			addr,
			n.handle4,
			server4.WithLogger(server4.ShortSummaryLogger{Printfer: n}),
		)
		if err != nil {
			return fmt.Errorf("node %s: listen on %s: %w", n.name, addr, err)
		}
		n.servers4 = append(n.servers4, server)
	}

	n.group = &errgroup.Group{}
	for _, server := range n.servers4 {
		server := server
		n.group.Go(func() error {
			if err := server.Serve(); err != nil {
				n.logger.Debug("dhcp listener stopped", zap.Error(err))
			}
			return nil
		})
	}
	if n.ctl != nil {
		n.group.Go(func() error {
			n.ctl.Serve()
			return nil
		})
	}
	n.group.Go(func() error {
		n.readLoop()
		return nil
	})
	n.group.Go(func() error {
		n.tickLoop()
		return nil
	})

	n.logger.Info("node running",
		zap.String("name", n.name),
		zap.String("interface", n.cfg.Interface),
		zap.Uint64("node_id", n.cfg.NodeID),
	)
	return nil
}

// Stop closes every listener this node owns, which unblocks the
// reader, ticker, and server goroutines, then waits for all of them
// to exit via the errgroup collecting them.
func (n *Node) Stop() error {
	close(n.tickStop)

	for _, server := range n.servers4 {
		_ = server.Close()
	}
	if n.ctl != nil {
		_ = n.ctl.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}

	err := n.group.Wait()
	n.logger.Info("node stopped", zap.String("name", n.name))
	return err
}

// readLoop only decodes and enqueues; it never touches core.Table.
// A full queue drops the oldest packet with a warning, matching
// spec.md §1's bounded-but-not-guaranteed-delivery non-goal.
func (n *Node) readLoop() {
	for {
		packet, src, err := n.conn.Receive()
		if err != nil {
			if src != nil {
				// A datagram arrived but did not decode; drop it.
				n.logger.Warn("dropping malformed multicast packet", zap.Error(err))
				continue
			}
			n.logger.Debug("multicast read loop exiting", zap.Error(err))
			return
		}
		if !n.acceptsPacket(packet) {
			continue
		}
		select {
		case n.inbound <- inboundPacket{packet: packet}:
		default:
			select {
			case <-n.inbound:
			default:
			}
			n.inbound <- inboundPacket{packet: packet}
			n.logger.Warn("inbound queue full, dropped oldest packet")
		}
	}
}

// acceptsPacket drops packets from self and packets whose fixed header
// fields do not match local configuration, per spec.md §6.1/§7.
func (n *Node) acceptsPacket(p *mcast.Packet) bool {
	if p.NodeID == n.cfg.NodeID {
		return false
	}
	cfg := n.table.Config()
	var localPrefix [4]byte
	copy(localPrefix[:], cfg.Prefix.To4())
	if p.Prefix != localPrefix || p.PrefixLen != uint8(cfg.PrefixLen) || p.BlockSize != cfg.BlockSize {
		n.logger.Warn("dropping packet with mismatched header", zap.Uint64("sender", p.NodeID))
		return false
	}
	return true
}

// tickLoop is the single goroutine that mutates core.Table. Per
// spec.md §5's fixed ordering: drain pending inbound packets, sweep
// timeouts, run the claim engine, run renewal & reaper.
func (n *Node) tickLoop() {
	ticker := time.NewTicker(time.Duration(n.cfg.TickInterval))
	defer ticker.Stop()

	for {
		select {
		case <-n.tickStop:
			return
		case pkt := <-n.inbound:
			n.table.HandleInbound(pkt.packet.NodeID, pkt.packet.Command, pkt.packet.Entries)
		case <-ticker.C:
			n.runTick()
		}
	}
}

func (n *Node) runTick() {
	n.drainInbound()
	n.table.CheckTimeouts(time.Now())

	needed := n.table.BlocksNeeded()

	if packet, err := n.table.ClaimTick(needed); err != nil {
		n.logger.Error("claim tick failed", zap.Error(err))
	} else if packet != nil {
		n.send(packet)
	}

	if packet, err := n.table.RenewalTick(needed); err != nil {
		n.logger.Error("renewal tick failed", zap.Error(err))
	} else if packet != nil {
		n.send(packet)
	}
}

func (n *Node) drainInbound() {
	for {
		select {
		case pkt := <-n.inbound:
			n.table.HandleInbound(pkt.packet.NodeID, pkt.packet.Command, pkt.packet.Entries)
		default:
			return
		}
	}
}

func (n *Node) send(p *mcast.Packet) {
	if err := n.conn.Send(p); err != nil {
		n.logger.Warn("multicast send failed", zap.Error(err))
	}
}

// Printf implements server4.Printfer so the insomniacslk/dhcp server
// can route its own diagnostics through this node's logger.
func (n *Node) Printf(format string, v ...interface{}) {
	n.logger.Debug(fmt.Sprintf(format, v...))
}

func (n *Node) handle4(conn net.PacketConn, peer net.Addr, m *dhcpv4.DHCPv4) {
	var (
		req, resp *dhcpv4.DHCPv4
		err       error
		written   int
	)

	if n.accessLog != nil {
		var remoteIP net.IP
		var remotePort int
		if udpAddr, ok := peer.(*net.UDPAddr); ok {
			remoteIP = udpAddr.IP
			remotePort = udpAddr.Port
		}
		start := time.Now()
		defer func() {
			d := time.Since(start)
			n.accessLog.Info(
				"handled request",
				zap.String("remote_ip", remoteIP.String()),
				zap.Int("remote_port", remotePort),
				zap.String("message_type", m.MessageType().String()),
				zap.Int("bytes_written", written),
				zap.String("duration", d.String()),
			)
		}()
	}

	req = m
	n.logger.Debug("received message", zap.String("message", req.Summary()))

	resp, err = dhcpv4.NewReplyFromRequest(req)
	if err != nil {
		n.Printf("handle4: failed to build reply: %v", err)
		return
	}
	switch mt := req.MessageType(); mt {
	case dhcpv4.MessageTypeDiscover:
		resp.UpdateOption(dhcpv4.OptMessageType(dhcpv4.MessageTypeOffer))
	case dhcpv4.MessageTypeRequest:
		resp.UpdateOption(dhcpv4.OptMessageType(dhcpv4.MessageTypeAck))
	case dhcpv4.MessageTypeRelease:
		// no reply is sent for RELEASE
	default:
		n.Printf("handle4: unhandled message type: %v", mt)
		return
	}

	err = n.handler.Handle4(req, resp, func() error { return nil })
	if err != nil {
		n.logger.Error("handler chain failed", zap.Error(err))
		return
	}

	if resp != nil && req.MessageType() != dhcpv4.MessageTypeRelease {
		written, err = conn.WriteTo(resp.ToBytes(), peer)
		if err != nil {
			n.logger.Error(err.Error())
		}
		n.logger.Debug("send message", zap.String("message", resp.Summary()))
	}
}
