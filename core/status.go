package core

import (
	"fmt"
	"io"
)

// WriteStatus writes the CSV status dump consumed by the operator
// control channel: header row, then one row per block
// (index,state,owner,claim_count,timeout). The owner column is empty
// for blocks without a known owner.
func (t *Table) WriteStatus(w io.Writer) error {
	if _, err := io.WriteString(w, "index,state,owner,claim_count,timeout\n"); err != nil {
		return err
	}

	for _, b := range t.blocks {
		owner := ""
		if b.State == Ours || b.State == Claimed {
			owner = fmt.Sprintf("%d", b.OwnerID)
		}

		var timeout int64
		if !b.Timeout.IsZero() {
			timeout = b.Timeout.Unix()
		}

		if _, err := fmt.Fprintf(w, "%d,%d,%s,%d,%d\n", b.Index, b.State, owner, b.ClaimAnnouncements, timeout); err != nil {
			return err
		}
	}

	return nil
}
