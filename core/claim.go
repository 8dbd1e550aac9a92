package core

import (
	"github.com/ddhcp-project/ddhcpd/mcast"
)

// promoteThreshold is the number of consecutive announcements a
// CLAIMING block requires before it is promoted to OURS. The tentative
// window is therefore approximately promoteThreshold tick periods.
const promoteThreshold = 3

// ClaimTick drives the claim engine once per scheduling tick. numBlocks is
// the number of additional blocks this node wants beyond what it
// already owns or is claiming. It returns the packet to multicast
// (command inquire), or nil if there is nothing to announce.
//
// Step order follows spec: advance or abandon tentatives, top up to
// numBlocks, then announce.
func (t *Table) ClaimTick(numBlocks int) (*mcast.Packet, error) {
	t.advanceOrAbandonTentatives(&numBlocks)
	t.topUp(numBlocks)
	return t.announceClaims()
}

func (t *Table) advanceOrAbandonTentatives(numBlocks *int) {
	remaining := t.claiming[:0:0]
	for _, index := range t.claiming {
		b := &t.blocks[index]
		switch {
		case b.ClaimAnnouncements >= promoteThreshold:
			_ = t.own(index)
			*numBlocks--
		case b.State != Claiming:
			// Preempted by a peer's inquire/claim; see HandleInbound.
		default:
			remaining = append(remaining, index)
		}
	}
	t.claiming = remaining
}

func (t *Table) topUp(numBlocks int) {
	for len(t.claiming) < numBlocks {
		index, ok := t.FindFree()
		if !ok {
			// Network has no free blocks left; stop topping up this
			// tick and try again next tick.
			break
		}
		b := &t.blocks[index]
		b.State = Claiming
		b.ClaimAnnouncements = 0
		b.Timeout = t.clock.Now().Add(t.cfg.TentativeTimeout)
		t.setFree(index, false)
		t.claiming = append(t.claiming, index)
	}
}

func (t *Table) announceClaims() (*mcast.Packet, error) {
	if len(t.claiming) == 0 {
		return nil, nil
	}

	entries := make([]mcast.PayloadEntry, len(t.claiming))
	for i, index := range t.claiming {
		t.blocks[index].ClaimAnnouncements++
		entries[i] = mcast.PayloadEntry{BlockIndex: index, Timeout: 0}
	}

	return t.buildPacket(mcast.CmdInquire, entries), nil
}

func (t *Table) buildPacket(cmd mcast.Command, entries []mcast.PayloadEntry) *mcast.Packet {
	var prefix [4]byte
	copy(prefix[:], t.cfg.Prefix.To4())
	return &mcast.Packet{
		NodeID:    t.cfg.NodeID,
		Prefix:    prefix,
		PrefixLen: uint8(t.cfg.PrefixLen),
		BlockSize: t.cfg.BlockSize,
		Command:   cmd,
		Entries:   entries,
	}
}
