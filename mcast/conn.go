package mcast

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv6"
)

// DefaultGroup is the link-local multicast group ddhcp nodes exchange
// claim/inquire packets on.
var DefaultGroup = net.ParseIP("ff02::1234")

// DefaultPort is the default UDP port for the multicast group.
const DefaultPort = 1234

// MaxPacketSize bounds a single received datagram. A buffer of this
// size holds the 20-byte header plus at most 509 payload entries; a
// larger datagram is truncated and fails to decode. In practice a tick
// carries at most a handful of entries.
const MaxPacketSize = 4096

// Conn is a joined multicast socket used to send and receive claim and
// inquire packets on one interface.
type Conn struct {
	pc    *ipv6.PacketConn
	iface *net.Interface
	group *net.UDPAddr
	port  int
}

// Dial opens a UDP6 socket bound to port, joins group on iface, and
// disables multicast loopback so packets this node sends are not
// delivered back to itself.
func Dial(iface *net.Interface, group net.IP, port int) (*Conn, error) {
	conn, err := net.ListenPacket("udp6", fmt.Sprintf("[::]:%d", port))
	if err != nil {
		return nil, fmt.Errorf("mcast: listen: %w", err)
	}

	pc := ipv6.NewPacketConn(conn)
	groupAddr := &net.UDPAddr{IP: group}

	if err := pc.JoinGroup(iface, groupAddr); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mcast: join group on %s: %w", iface.Name, err)
	}

	if err := pc.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mcast: disable multicast loopback: %w", err)
	}

	if err := pc.SetMulticastInterface(iface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mcast: set egress interface %s: %w", iface.Name, err)
	}

	return &Conn{pc: pc, iface: iface, group: groupAddr, port: port}, nil
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return c.pc.Close()
}

// Send marshals p and writes it to the multicast group.
func (c *Conn) Send(p *Packet) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("mcast: marshal: %w", err)
	}

	dst := &net.UDPAddr{IP: c.group.IP, Port: c.port, Zone: c.iface.Name}
	if _, err := c.pc.WriteTo(data, nil, dst); err != nil {
		return fmt.Errorf("mcast: send: %w", err)
	}

	return nil
}

// Receive blocks until a datagram arrives, decoding it into a Packet.
// It returns the decoded packet and the sender's address.
func (c *Conn) Receive() (*Packet, net.Addr, error) {
	buf := make([]byte, MaxPacketSize)
	n, _, src, err := c.pc.ReadFrom(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("mcast: receive: %w", err)
	}

	p := new(Packet)
	if err := p.UnmarshalBinary(buf[:n]); err != nil {
		return nil, src, fmt.Errorf("mcast: decode from %s: %w", src, err)
	}

	return p, src, nil
}
