package core

import (
	"math/rand/v2"
	"net"
	"testing"
	"time"

	"github.com/ddhcp-project/ddhcpd/clock"
)

func testConfig() Config {
	return Config{
		Prefix:            net.IPv4(10, 0, 0, 0),
		PrefixLen:         24,
		BlockSize:         16,
		NumberOfBlocks:    16,
		NodeID:            1,
		TentativeTimeout:  30 * time.Second,
		BlockTimeout:      60 * time.Second,
		SpareBlocksNeeded: 2,
	}
}

func newTestTable(t *testing.T) (*Table, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock(time.Unix(1_700_000_000, 0))
	rng := rand.New(rand.NewPCG(1, 2))
	tbl, err := NewTable(testConfig(), mock, rng)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl, mock
}

func TestOwnReleaseRoundTrip(t *testing.T) {
	tbl, _ := newTestTable(t)

	if err := tbl.Own(3); err != nil {
		t.Fatalf("Own: %v", err)
	}
	b, _ := tbl.Block(3)
	if b.State != Ours {
		t.Fatalf("state = %s, want OURS", b.State)
	}
	if b.Addresses == nil {
		t.Fatal("Addresses is nil after Own")
	}
	if b.OwnerID != 1 {
		t.Fatalf("OwnerID = %d, want 1", b.OwnerID)
	}

	if err := tbl.Release(3); err != nil {
		t.Fatalf("Release: %v", err)
	}
	b, _ = tbl.Block(3)
	if b.State != Free {
		t.Fatalf("state after release = %s, want FREE", b.State)
	}
	if b.Addresses != nil {
		t.Fatal("Addresses not nil after Release")
	}
}

func TestOwnOursInvariant(t *testing.T) {
	tbl, _ := newTestTable(t)
	for i := uint32(0); i < tbl.cfg.NumberOfBlocks; i++ {
		b, _ := tbl.Block(i)
		if (b.State == Ours) != (b.Addresses != nil) {
			t.Fatalf("block %d: state=%s addresses=%v violates OURS<=>addresses invariant", i, b.State, b.Addresses != nil)
		}
	}
	_ = tbl.Own(0)
	b, _ := tbl.Block(0)
	if (b.State == Ours) != (b.Addresses != nil) {
		t.Fatalf("after Own: state=%s addresses=%v", b.State, b.Addresses != nil)
	}
}

func TestFindFreeExcludesNonFree(t *testing.T) {
	tbl, _ := newTestTable(t)
	if err := tbl.Own(0); err != nil {
		t.Fatal(err)
	}

	seen := make(map[uint32]bool)
	for i := 0; i < 500; i++ {
		idx, ok := tbl.FindFree()
		if !ok {
			t.Fatal("FindFree returned false with free blocks remaining")
		}
		if idx == 0 {
			t.Fatal("FindFree returned owned block 0")
		}
		seen[idx] = true
	}

	if len(seen) < 2 {
		t.Fatalf("FindFree looks non-random: only saw %d distinct indices over 500 draws", len(seen))
	}
}

func TestFindFreeNoneWhenExhausted(t *testing.T) {
	tbl, _ := newTestTable(t)
	for i := uint32(0); i < tbl.cfg.NumberOfBlocks; i++ {
		if err := tbl.Own(i); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := tbl.FindFree(); ok {
		t.Fatal("FindFree returned a block when none are free")
	}
}

func TestCheckTimeoutsReleasesExpired(t *testing.T) {
	tbl, mock := newTestTable(t)
	if err := tbl.Own(5); err != nil {
		t.Fatal(err)
	}

	mock.Advance(61 * time.Second)
	tbl.CheckTimeouts(mock.Now())

	b, _ := tbl.Block(5)
	if b.State != Free {
		t.Fatalf("state = %s, want FREE after timeout", b.State)
	}
}

func TestCheckTimeoutsIgnoresBlocked(t *testing.T) {
	tbl, mock := newTestTable(t)
	tbl.blocks[2].State = Blocked

	mock.Advance(1000 * time.Second)
	tbl.CheckTimeouts(mock.Now())

	b, _ := tbl.Block(2)
	if b.State != Blocked {
		t.Fatalf("state = %s, want BLOCKED to survive CheckTimeouts", b.State)
	}
}

func TestCountFreeLeasesInOwned(t *testing.T) {
	tbl, _ := newTestTable(t)
	if tbl.CountFreeLeasesInOwned() != 0 {
		t.Fatal("expected 0 free leases with no owned blocks")
	}
	if err := tbl.Own(0); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Own(1); err != nil {
		t.Fatal(err)
	}
	want := int(tbl.cfg.BlockSize) * 2
	if got := tbl.CountFreeLeasesInOwned(); got != want {
		t.Fatalf("CountFreeLeasesInOwned = %d, want %d", got, want)
	}
}
