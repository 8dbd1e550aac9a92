package core

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ddhcp-project/ddhcpd/clock"
	"github.com/ddhcp-project/ddhcpd/mcast"
)

// bus is an in-memory fake multicast fabric connecting two Tables for
// testing, with no loss and no reordering beyond FIFO delivery.
type bus struct {
	tables []*Table
}

func (b *bus) deliver(senderIndex int, pkt *mcast.Packet) {
	if pkt == nil {
		return
	}
	for i, t := range b.tables {
		if i == senderIndex {
			continue
		}
		t.HandleInbound(pkt.NodeID, pkt.Command, pkt.Entries)
	}
}

func newScenarioTable(t *testing.T, nodeID uint64, mock *clock.Mock, seed uint64) *Table {
	t.Helper()
	cfg := testConfig()
	cfg.NodeID = nodeID
	rng := rand.New(rand.NewPCG(seed, seed+1))
	tbl, err := NewTable(cfg, mock, rng)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

// tick runs one full scheduling tick for every table in the bus, in
// the spec's fixed order: claim engine then renewal, delivering any
// emitted packets to peers immediately (no loss, bounded delay).
func (b *bus) tick(t *testing.T, numBlocks, blocksNeeded int) {
	t.Helper()
	for i, tbl := range b.tables {
		pkt, err := tbl.ClaimTick(numBlocks)
		if err != nil {
			t.Fatalf("ClaimTick: %v", err)
		}
		b.deliver(i, pkt)
	}
	for i, tbl := range b.tables {
		pkt, err := tbl.RenewalTick(blocksNeeded)
		if err != nil {
			t.Fatalf("RenewalTick: %v", err)
		}
		b.deliver(i, pkt)
	}
}

func TestTwoNodeSafetyDisjointOwnership(t *testing.T) {
	mock := clock.NewMock(time.Unix(1_700_000_000, 0))
	a := newScenarioTable(t, 1, mock, 10)
	bNode := newScenarioTable(t, 2, mock, 20)
	fabric := &bus{tables: []*Table{a, bNode}}

	for i := 0; i < 4; i++ {
		fabric.tick(t, 4, 0)
		mock.Advance(10 * time.Second)
		a.CheckTimeouts(mock.Now())
		bNode.CheckTimeouts(mock.Now())
	}

	ownedByA := map[uint32]bool{}
	for _, blk := range a.Blocks() {
		if blk.State == Ours {
			ownedByA[blk.Index] = true
		}
	}
	for _, blk := range bNode.Blocks() {
		if blk.State == Ours && ownedByA[blk.Index] {
			t.Fatalf("block %d is OURS on both nodes: safety violated", blk.Index)
		}
	}
}

func TestSoloClaimReachesDesiredCount(t *testing.T) {
	mock := clock.NewMock(time.Unix(1_700_000_000, 0))
	a := newScenarioTable(t, 1, mock, 30)
	fabric := &bus{tables: []*Table{a}}

	const desired = 2
	// 3 × tick + tentative_timeout worth of ticks, at a 10s tick period
	// against a 30s tentative timeout: comfortably more than the 4
	// ticks promotion mechanically requires.
	for i := 0; i < 6; i++ {
		fabric.tick(t, desired, 0)
		mock.Advance(10 * time.Second)
		a.CheckTimeouts(mock.Now())
	}

	owned := 0
	for _, blk := range a.Blocks() {
		if blk.State == Ours {
			owned++
		}
	}
	if owned != desired {
		t.Fatalf("owned = %d, want %d", owned, desired)
	}
}
