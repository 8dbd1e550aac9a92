// Package mcast implements the wire format and IPv6 multicast transport
// for the ddhcp claim/inquire coordination protocol.
package mcast

import (
	"encoding/binary"
	"fmt"
)

// Command identifies the kind of announcement carried by a Packet.
type Command uint8

const (
	// CmdClaim announces ownership of the enclosed blocks, valid for the
	// entry's Timeout seconds.
	CmdClaim Command = 1
	// CmdInquire announces tentative intent to claim the enclosed blocks.
	// Entries carry Timeout == 0.
	CmdInquire Command = 2
)

func (c Command) String() string {
	switch c {
	case CmdClaim:
		return "claim"
	case CmdInquire:
		return "inquire"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// PayloadEntry describes one block within a Packet.
type PayloadEntry struct {
	BlockIndex uint32
	Timeout    uint16 // seconds; 0 in inquire entries
	Reserved   uint16
}

const (
	headerSize = 8 + 4 + 1 + 4 + 1 + 2 // node_id + prefix + prefix_len + block_size + command + count
	entrySize  = 4 + 2 + 2
)

// Packet is the on-wire claim/inquire message exchanged over the
// link-local IPv6 multicast group.
type Packet struct {
	NodeID    uint64
	Prefix    [4]byte
	PrefixLen uint8
	BlockSize uint32
	Command   Command
	Entries   []PayloadEntry
}

// MarshalBinary encodes the packet per the ddhcp wire format: all
// multi-byte integers are big-endian.
func (p *Packet) MarshalBinary() ([]byte, error) {
	if len(p.Entries) > 1<<16-1 {
		return nil, fmt.Errorf("mcast: too many payload entries: %d", len(p.Entries))
	}

	buf := make([]byte, headerSize+entrySize*len(p.Entries))
	binary.BigEndian.PutUint64(buf[0:8], p.NodeID)
	copy(buf[8:12], p.Prefix[:])
	buf[12] = p.PrefixLen
	binary.BigEndian.PutUint32(buf[13:17], p.BlockSize)
	buf[17] = byte(p.Command)
	binary.BigEndian.PutUint16(buf[18:20], uint16(len(p.Entries)))

	off := headerSize
	for _, e := range p.Entries {
		binary.BigEndian.PutUint32(buf[off:off+4], e.BlockIndex)
		binary.BigEndian.PutUint16(buf[off+4:off+6], e.Timeout)
		binary.BigEndian.PutUint16(buf[off+6:off+8], e.Reserved)
		off += entrySize
	}

	return buf, nil
}

// UnmarshalBinary decodes a packet previously produced by MarshalBinary.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("mcast: short packet: %d bytes", len(data))
	}

	p.NodeID = binary.BigEndian.Uint64(data[0:8])
	copy(p.Prefix[:], data[8:12])
	p.PrefixLen = data[12]
	p.BlockSize = binary.BigEndian.Uint32(data[13:17])
	p.Command = Command(data[17])
	count := binary.BigEndian.Uint16(data[18:20])

	want := headerSize + entrySize*int(count)
	if len(data) < want {
		return fmt.Errorf("mcast: truncated payload: have %d bytes, want %d", len(data), want)
	}

	entries := make([]PayloadEntry, count)
	off := headerSize
	for i := range entries {
		entries[i] = PayloadEntry{
			BlockIndex: binary.BigEndian.Uint32(data[off : off+4]),
			Timeout:    binary.BigEndian.Uint16(data[off+4 : off+6]),
			Reserved:   binary.BigEndian.Uint16(data[off+6 : off+8]),
		}
		off += entrySize
	}
	p.Entries = entries

	return nil
}
