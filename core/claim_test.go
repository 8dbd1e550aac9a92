package core

import (
	"testing"
	"time"

	"github.com/ddhcp-project/ddhcpd/mcast"
)

func TestClaimTickTopsUpAndAnnounces(t *testing.T) {
	tbl, _ := newTestTable(t)

	pkt, err := tbl.ClaimTick(2)
	if err != nil {
		t.Fatalf("ClaimTick: %v", err)
	}
	if pkt == nil {
		t.Fatal("expected an inquire packet")
	}
	if pkt.Command != mcast.CmdInquire {
		t.Fatalf("command = %s, want inquire", pkt.Command)
	}
	if len(pkt.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(pkt.Entries))
	}
	if len(tbl.ClaimingList()) != 2 {
		t.Fatalf("claiming list len = %d, want 2", len(tbl.ClaimingList()))
	}
	for _, idx := range tbl.ClaimingList() {
		b, _ := tbl.Block(idx)
		if b.State != Claiming {
			t.Fatalf("block %d state = %s, want CLAIMING", idx, b.State)
		}
		if b.ClaimAnnouncements != 1 {
			t.Fatalf("block %d announcements = %d, want 1", idx, b.ClaimAnnouncements)
		}
	}
}

func TestClaimTickPromotesAfterThreeAnnouncements(t *testing.T) {
	tbl, _ := newTestTable(t)

	if _, err := tbl.ClaimTick(1); err != nil {
		t.Fatal(err)
	}
	claiming := tbl.ClaimingList()
	if len(claiming) != 1 {
		t.Fatalf("expected exactly 1 claiming block, got %d", len(claiming))
	}
	index := claiming[0]

	// Announcements increment at the end of each tick and are checked
	// against the threshold at the start of the next: three ticks
	// bring the count to 3, and the fourth tick's advance phase is
	// what actually promotes the block.
	for i := 0; i < 2; i++ {
		if _, err := tbl.ClaimTick(1); err != nil {
			t.Fatal(err)
		}
	}
	b, _ := tbl.Block(index)
	if b.State != Claiming {
		t.Fatalf("state = %s, want still CLAIMING before the 4th tick", b.State)
	}

	if _, err := tbl.ClaimTick(1); err != nil {
		t.Fatal(err)
	}
	b, _ = tbl.Block(index)
	if b.State != Ours {
		t.Fatalf("state = %s, want OURS after 3 announcements", b.State)
	}
	if len(tbl.ClaimingList()) != 0 {
		t.Fatal("expected claiming list to be empty after promotion")
	}
}

func TestClaimTickNoPacketWhenNothingClaiming(t *testing.T) {
	tbl, _ := newTestTable(t)
	pkt, err := tbl.ClaimTick(0)
	if err != nil {
		t.Fatal(err)
	}
	if pkt != nil {
		t.Fatal("expected no packet when numBlocks == 0 and claiming list empty")
	}
}

func TestClaimTickAbandonsPreempted(t *testing.T) {
	tbl, _ := newTestTable(t)
	if _, err := tbl.ClaimTick(1); err != nil {
		t.Fatal(err)
	}
	claiming := tbl.ClaimingList()
	index := claiming[0]

	// Simulate a peer's inquire preempting our tentative claim.
	tbl.HandleInbound(2, mcast.CmdInquire, []mcast.PayloadEntry{{BlockIndex: index, Timeout: 0}})

	b, _ := tbl.Block(index)
	if b.State != Claimed {
		t.Fatalf("state = %s, want CLAIMED after preemption", b.State)
	}

	if _, err := tbl.ClaimTick(1); err != nil {
		t.Fatal(err)
	}
	for _, idx := range tbl.ClaimingList() {
		if idx == index {
			t.Fatalf("preempted block %d should have been dropped from the claiming list", index)
		}
	}
}

func TestClaimTickStopsToppingUpWhenExhausted(t *testing.T) {
	tbl, _ := newTestTable(t)
	pkt, err := tbl.ClaimTick(int(tbl.cfg.NumberOfBlocks) + 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.ClaimingList()) != int(tbl.cfg.NumberOfBlocks) {
		t.Fatalf("claiming list = %d, want all %d blocks claimed", len(tbl.ClaimingList()), tbl.cfg.NumberOfBlocks)
	}
	if pkt == nil || len(pkt.Entries) != int(tbl.cfg.NumberOfBlocks) {
		t.Fatal("expected announce packet covering every block")
	}
}

func TestClaimTickSetsTentativeTimeout(t *testing.T) {
	tbl, mock := newTestTable(t)
	if _, err := tbl.ClaimTick(1); err != nil {
		t.Fatal(err)
	}
	index := tbl.ClaimingList()[0]
	b, _ := tbl.Block(index)
	if b.Timeout.Sub(mock.Now()) != 30*time.Second {
		t.Fatalf("tentative timeout = %v, want %v", b.Timeout.Sub(mock.Now()), 30*time.Second)
	}
}
