package core

import (
	"github.com/ddhcp-project/ddhcpd/mcast"
)

// RenewalTick drives the renewal & reaper pass once per scheduling
// tick. blocksNeeded is signed: negative means this node has excess
// capacity and may shed blocks. It returns the packet to multicast
// (command claim), or nil if nothing needs renewal this tick.
//
// Shedding: per spec.md design note, blocks are shed until
// blocksNeeded >= 0 within this single pass (rather than at most one
// block per pass), since only shedding fully-idle blocks cannot itself
// create new demand.
func (t *Table) RenewalTick(blocksNeeded int) (*mcast.Packet, error) {
	now := t.clock.Now()
	renewHorizon := now.Add(t.cfg.BlockTimeout / 2)

	var toRenew []uint32
	for i := range t.blocks {
		b := &t.blocks[i]
		if b.State != Ours || !b.Timeout.Before(renewHorizon) {
			continue
		}

		if blocksNeeded < 0 && b.Addresses.NumFree() == int(t.cfg.BlockSize) {
			// Shedding one excess, fully-idle block reduces the surplus
			// by exactly one; continue shedding until the surplus is
			// gone (blocksNeeded >= 0), rather than stopping after a
			// single block per pass.
			blocksNeeded++
			_ = t.Release(b.Index)
			continue
		}

		toRenew = append(toRenew, b.Index)
	}

	if len(toRenew) == 0 {
		return nil, nil
	}

	entries := make([]mcast.PayloadEntry, len(toRenew))
	for i, index := range toRenew {
		b := &t.blocks[index]
		b.Timeout = now.Add(t.cfg.BlockTimeout)
		entries[i] = mcast.PayloadEntry{BlockIndex: index, Timeout: uint16(t.cfg.BlockTimeout.Seconds())}
	}

	return t.buildPacket(mcast.CmdClaim, entries), nil
}
