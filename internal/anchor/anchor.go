// Package anchor computes the daily Merkle root over a day's receipt
// CIDs for tamper-evidence.
package anchor

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"lukechampine.com/blake3"
)

// DayAnchor is the derived-on-demand summary of a date's receipt set.
type DayAnchor struct {
	Date        string
	Root        string
	Count       int
	GeneratedAt time.Time
}

// AnchorDay builds the Merkle root over cids for date, per §4.6: sort
// the CIDs, hash each as a leaf, then pairwise-reduce (duplicating a
// lone trailing node) until one root remains.
func AnchorDay(date string, cids []string) DayAnchor {
	return DayAnchor{
		Date:        date,
		Root:        Root(cids),
		Count:       len(cids),
		GeneratedAt: time.Now().UTC(),
	}
}

// Root computes just the Merkle root bytes-identity for cids,
// independent of any timestamp, so it can be compared across calls.
func Root(cids []string) string {
	if len(cids) == 0 {
		return hexBlake3([]byte{})
	}
	sorted := make([]string, len(cids))
	copy(sorted, cids)
	sort.Strings(sorted)

	level := make([]string, len(sorted))
	for i, cid := range sorted {
		level[i] = hexBlake3([]byte(cid))
	}

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			l := level[i]
			r := l
			if i+1 < len(level) {
				r = level[i+1]
			}
			next = append(next, hexBlake3([]byte(l+r)))
		}
		level = next
	}
	return level[0]
}

func hexBlake3(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RebuildResult is the outcome of verifying a claimed root against a
// recomputed one.
type RebuildResult struct {
	OK     bool
	Root   string
	Reason string
}

// RebuildAnchor recomputes the root for (date, cids) and compares it
// to expectedRoot.
func RebuildAnchor(date string, cids []string, expectedRoot string) RebuildResult {
	got := Root(cids)
	if got != expectedRoot {
		return RebuildResult{OK: false, Root: got, Reason: "anchor root mismatch"}
	}
	return RebuildResult{OK: true, Root: got}
}

// String renders a DayAnchor for logging.
func (a DayAnchor) String() string {
	return fmt.Sprintf("DayAnchor{date=%s root=%s count=%d}", a.Date, a.Root, a.Count)
}
