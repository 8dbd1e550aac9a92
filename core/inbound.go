package core

import (
	"time"

	"github.com/ddhcp-project/ddhcpd/mcast"
)

// HandleInbound applies one received claim/inquire packet from a peer.
// Packets whose senderID equals this node's own NodeID are ignored by
// the caller before this is reached (loopback is suppressed at the
// socket layer, but callers should guard regardless per spec); this
// method additionally re-checks as a defensive measure.
func (t *Table) HandleInbound(senderID uint64, cmd mcast.Command, entries []mcast.PayloadEntry) {
	if senderID == t.cfg.NodeID {
		return
	}

	now := t.clock.Now()
	for _, e := range entries {
		if e.BlockIndex >= uint32(len(t.blocks)) {
			continue
		}
		t.handleEntry(senderID, now, e)
	}
}

// handleEntry dispatches on (current state, peer announcement), per
// the inbound claim handler's state table.
func (t *Table) handleEntry(senderID uint64, now time.Time, e mcast.PayloadEntry) {
	b := &t.blocks[e.BlockIndex]
	timeout := now.Add(time.Duration(e.Timeout) * time.Second)

	switch b.State {
	case Free:
		b.State = Claimed
		b.OwnerID = senderID
		b.Timeout = timeout
		t.setFree(e.BlockIndex, false)

	case Claimed:
		// Refresh on renewal from the same owner; last-writer-wins
		// overwrite when a different sender claims it (the network is
		// expected to converge as conflicting owners detect each
		// other).
		b.OwnerID = senderID
		b.Timeout = timeout

	case Claiming:
		t.removeFromClaiming(e.BlockIndex)
		b.State = Claimed
		b.OwnerID = senderID
		b.Timeout = timeout

	case Ours:
		// We hold authoritative state for this block; ignore. The
		// peer will see our next claim renewal and correct itself.

	case Blocked:
		// Administratively reserved; ignore.
	}
}

func (t *Table) removeFromClaiming(index uint32) {
	for i, v := range t.claiming {
		if v == index {
			t.claiming = append(t.claiming[:i], t.claiming[i+1:]...)
			return
		}
	}
}
