// Package idalloc assigns dense monotonic integer ids to addresses, clusters,
// and EVM transactions (spec.md 4.2/4.6 step 3). Allocation is a pure
// function of the ordered appearance stream: given the same input stream and
// the same starting counter, two runs produce identical id assignments
// (spec.md section 8: "Address-id assignment is deterministic").
package idalloc

import "sync"

// Allocator hands out dense ids starting from a high-water mark loaded from
// the store at startup. It is owned by the UpdateStrategy and is the only
// piece of in-process mutable state besides the UTXO input-resolution LRU
// (spec.md section 5).
type Allocator struct {
	mu   sync.Mutex
	next int64
}

// New returns an Allocator that will hand out highestAssigned+1 next. Pass
// -1 if nothing has been assigned yet.
func New(highestAssigned int64) *Allocator {
	return &Allocator{next: highestAssigned + 1}
}

// Next draws a single fresh id.
func (a *Allocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}

// NextBatch draws n fresh, contiguous ids in allocation order.
func (a *Allocator) NextBatch(n int) []int64 {
	if n <= 0 {
		return nil
	}
	a.mu.Lock()
	start := a.next
	a.next += int64(n)
	a.mu.Unlock()

	out := make([]int64, n)
	for i := range out {
		out[i] = start + int64(i)
	}
	return out
}

// Highest returns the highest id handed out so far, or -1 if none.
func (a *Allocator) Highest() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - 1
}

// AssignNewAddresses draws ids for every address in ordered (deduplicated,
// appearance-ordered) that isn't already present in existing, preserving the
// order of ordered. existing is mutated in place and also returned.
func (a *Allocator) AssignNewAddresses(ordered []string, existing map[string]int64) map[string]int64 {
	if existing == nil {
		existing = make(map[string]int64, len(ordered))
	}
	for _, addr := range ordered {
		if _, ok := existing[addr]; ok {
			continue
		}
		existing[addr] = a.Next()
	}
	return existing
}

// TronTransactionID derives a Tron transaction id without consulting the
// allocator: (block_id << 32) | transaction_index (spec.md 4.6 step 3).
func TronTransactionID(blockID int64, transactionIndex int) int64 {
	return (blockID << 32) | int64(transactionIndex)
}
