package core

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/ddhcp-project/ddhcpd/clock"
)

// State is the ownership state of a block.
type State uint8

const (
	Free State = iota
	Claiming
	Ours
	Claimed
	Blocked
)

func (s State) String() string {
	switch s {
	case Free:
		return "FREE"
	case Claiming:
		return "CLAIMING"
	case Ours:
		return "OURS"
	case Claimed:
		return "CLAIMED"
	case Blocked:
		return "BLOCKED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Block is one entry in the block table.
type Block struct {
	Index              uint32
	State              State
	OwnerID            uint64
	Timeout            time.Time
	ClaimAnnouncements int
	Addresses          *LeaseTable // non-nil iff State == Ours
}

// ErrNoCapacity is returned by AcquireOffer when no owned block has a
// free address.
var ErrNoCapacity = errors.New("core: no free address available")

// ErrOutOfRange is returned for operations on a block index outside
// [0, NumberOfBlocks).
var ErrOutOfRange = errors.New("core: block index out of range")

// Table is the single source of truth for block ownership and the
// per-block lease tables of blocks this node owns. It is single-writer
// by construction: callers are expected to serialize all mutation
// through one goroutine (see node.go's tick loop).
type Table struct {
	cfg    Config
	clock  clock.Clock
	rng    *rand.Rand
	blocks []Block
	free   *bitset.BitSet // bit i set iff blocks[i].State == Free

	// claiming is the ordered list of block indices currently in
	// Claiming state, in the order this node began claiming them.
	claiming []uint32
}

// NewTable builds a Table with every block FREE. clk and rng may be
// nil, defaulting to the real clock and a process-seeded PRNG
// respectively; tests inject both for determinism.
func NewTable(cfg Config, clk clock.Clock, rng *rand.Rand) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	blocks := make([]Block, cfg.NumberOfBlocks)
	free := bitset.New(uint(cfg.NumberOfBlocks))
	for i := range blocks {
		blocks[i].Index = uint32(i)
		free.Set(uint(i))
	}

	return &Table{cfg: cfg, clock: clk, rng: rng, blocks: blocks, free: free}, nil
}

// Config returns the table's configuration.
func (t *Table) Config() Config {
	return t.cfg
}

// Block returns a copy of the block record at index.
func (t *Table) Block(index uint32) (Block, error) {
	if index >= uint32(len(t.blocks)) {
		return Block{}, ErrOutOfRange
	}
	return t.blocks[index], nil
}

// Blocks returns a copy of every block record, in index order.
func (t *Table) Blocks() []Block {
	out := make([]Block, len(t.blocks))
	copy(out, t.blocks)
	return out
}

// ClaimingList returns a copy of the ordered list of indices currently
// Claiming.
func (t *Table) ClaimingList() []uint32 {
	out := make([]uint32, len(t.claiming))
	copy(out, t.claiming)
	return out
}

func (t *Table) setFree(index uint32, free bool) {
	if free {
		t.free.Set(uint(index))
	} else {
		t.free.Clear(uint(index))
	}
}

// own transitions blocks[index] (precondition: Free or Claiming) to
// Ours, allocating its lease table.
func (t *Table) own(index uint32) error {
	b := &t.blocks[index]
	if b.State != Free && b.State != Claiming {
		return fmt.Errorf("core: cannot own block %d in state %s", index, b.State)
	}
	b.State = Ours
	b.OwnerID = t.cfg.NodeID
	b.Timeout = t.clock.Now().Add(t.cfg.BlockTimeout)
	b.ClaimAnnouncements = 0
	b.Addresses = NewLeaseTable(t.cfg.BlockSize)
	t.setFree(index, false)
	return nil
}

// Own claims block index outright as owned by this node. Exposed for
// operator use and tests; the claim engine uses own() internally after
// the tentative window.
func (t *Table) Own(index uint32) error {
	if index >= uint32(len(t.blocks)) {
		return ErrOutOfRange
	}
	return t.own(index)
}

// Release drops the lease table (if any) of blocks[index] and returns
// it to Free. Precondition: state != Blocked.
func (t *Table) Release(index uint32) error {
	if index >= uint32(len(t.blocks)) {
		return ErrOutOfRange
	}
	b := &t.blocks[index]
	if b.State == Blocked {
		return fmt.Errorf("core: cannot release blocked block %d", index)
	}
	*b = Block{Index: index, State: Free}
	t.setFree(index, true)
	return nil
}

// FindFree returns a uniformly random Free block index via reservoir
// sampling over the set bits of the free bitmap, without materializing
// an intermediate slice of candidates.
func (t *Table) FindFree() (uint32, bool) {
	var chosen uint32
	found := false
	seen := 0

	for i, e := t.free.NextSet(0); e; i, e = t.free.NextSet(i + 1) {
		seen++
		if t.rng.IntN(seen) == 0 {
			chosen = uint32(i)
			found = true
		}
	}

	return chosen, found
}

// CountFreeLeasesInOwned sums NumFree() over every Ours block.
func (t *Table) CountFreeLeasesInOwned() int {
	total := 0
	for i := range t.blocks {
		if t.blocks[i].State == Ours {
			total += t.blocks[i].Addresses.NumFree()
		}
	}
	return total
}

// CheckTimeouts releases every block whose Timeout has passed and
// whose state is not Free or Blocked, and runs per-lease timeout
// checks on every Ours block.
func (t *Table) CheckTimeouts(now time.Time) {
	for i := range t.blocks {
		b := &t.blocks[i]
		if b.State != Free && b.State != Blocked && b.Timeout.Before(now) {
			_ = t.Release(b.Index)
			continue
		}
		if b.State == Ours {
			b.Addresses.CheckTimeouts(now)
		}
	}
}

// blockBaseIP returns the first address in block index.
func (t *Table) blockBaseIP(index uint32) net.IP {
	base := make(net.IP, net.IPv4len)
	copy(base, t.cfg.Prefix.To4())
	offset := index * t.cfg.BlockSize
	v := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	v += offset
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// addressIndex maps addr back to (blockIndex, leaseIndex), failing if
// addr falls outside the table's address range. It does not check
// ownership; callers check the block's state.
func (t *Table) addressIndex(addr net.IP) (blockIndex uint32, leaseIndex int, err error) {
	addr4 := addr.To4()
	if addr4 == nil {
		return 0, 0, fmt.Errorf("core: %s is not an IPv4 address", addr)
	}
	base4 := t.cfg.Prefix.To4()
	addrV := uint32(addr4[0])<<24 | uint32(addr4[1])<<16 | uint32(addr4[2])<<8 | uint32(addr4[3])
	baseV := uint32(base4[0])<<24 | uint32(base4[1])<<16 | uint32(base4[2])<<8 | uint32(base4[3])
	if addrV < baseV {
		return 0, 0, fmt.Errorf("core: %s outside configured prefix", addr)
	}
	offset := addrV - baseV
	blockIndex = offset / t.cfg.BlockSize
	leaseIndex = int(offset % t.cfg.BlockSize)
	if blockIndex >= uint32(len(t.blocks)) {
		return 0, 0, ErrOutOfRange
	}
	return blockIndex, leaseIndex, nil
}
