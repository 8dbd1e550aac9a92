package core

import (
	"testing"
	"time"
)

func TestAcquireOfferConfirmRelease(t *testing.T) {
	tbl, _ := newTestTable(t)
	if err := tbl.Own(0); err != nil {
		t.Fatal(err)
	}

	mac := mustMAC(t, "aa:bb:cc:dd:ee:03")
	addr, err := tbl.AcquireOffer(mac, 99)
	if err != nil {
		t.Fatal(err)
	}

	lease, err := tbl.Peek(addr)
	if err != nil {
		t.Fatal(err)
	}
	if lease.State != LeaseOffered {
		t.Fatalf("state = %s, want OFFERED", lease.State)
	}

	if err := tbl.Confirm(mac, 99, addr, time.Hour); err != nil {
		t.Fatal(err)
	}
	lease, err = tbl.Peek(addr)
	if err != nil {
		t.Fatal(err)
	}
	if lease.State != LeaseLeased {
		t.Fatalf("state = %s, want LEASED", lease.State)
	}

	if err := tbl.ReleaseAddress(addr); err != nil {
		t.Fatal(err)
	}
	lease, _ = tbl.Peek(addr)
	if lease.State != LeaseReleased {
		t.Fatalf("state = %s, want RELEASED immediately after release", lease.State)
	}
}

func TestAcquireOfferNoCapacity(t *testing.T) {
	tbl, _ := newTestTable(t)
	if _, err := tbl.AcquireOffer(mustMAC(t, "aa:bb:cc:dd:ee:04"), 1); err != ErrNoCapacity {
		t.Fatalf("err = %v, want ErrNoCapacity", err)
	}
}

func TestConfirmRejectsMismatchedClient(t *testing.T) {
	tbl, _ := newTestTable(t)
	if err := tbl.Own(0); err != nil {
		t.Fatal(err)
	}
	mac := mustMAC(t, "aa:bb:cc:dd:ee:05")
	addr, err := tbl.AcquireOffer(mac, 1)
	if err != nil {
		t.Fatal(err)
	}
	other := mustMAC(t, "aa:bb:cc:dd:ee:06")
	if err := tbl.Confirm(other, 1, addr, time.Hour); err == nil {
		t.Fatal("expected Confirm to reject a non-matching client MAC")
	}
}

func TestLeaseTableCheckTimeoutsExpiresLeasedAndOffered(t *testing.T) {
	lt := NewLeaseTable(4)
	now := time.Unix(1000, 0)
	lt.offer(0, mustMAC(t, "aa:bb:cc:dd:ee:07"), 1, now)
	lt.entries[1] = Lease{State: LeaseLeased, LeaseEnd: now.Add(-time.Second)}

	lt.CheckTimeouts(now.Add(DefaultOfferTimeout + time.Second))

	if lt.entries[0].State != LeaseFree {
		t.Fatalf("offered entry not expired: %+v", lt.entries[0])
	}
	if lt.entries[1].State != LeaseFree {
		t.Fatalf("leased entry not expired: %+v", lt.entries[1])
	}
}

func TestLeaseTableNumFree(t *testing.T) {
	lt := NewLeaseTable(4)
	if lt.NumFree() != 4 {
		t.Fatalf("NumFree = %d, want 4", lt.NumFree())
	}
	lt.offer(0, mustMAC(t, "aa:bb:cc:dd:ee:09"), 1, time.Now())
	if lt.NumFree() != 3 {
		t.Fatalf("NumFree = %d, want 3 after one offer", lt.NumFree())
	}
}
