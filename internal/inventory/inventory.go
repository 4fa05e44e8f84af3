// Package inventory implements the per-account lot inventory with its
// four pluggable selection policies: fifo, lifo, oldest, and newest.
package inventory

import (
	"container/heap"
	"fmt"

	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

// Policy selects which lot selection discipline an Inventory uses.
type Policy string

const (
	FIFO   Policy = "fifo"
	LIFO   Policy = "lifo"
	Oldest Policy = "oldest"
	Newest Policy = "newest"
)

// Valid reports whether p is one of the four recognized policies.
func (p Policy) Valid() bool {
	switch p {
	case FIFO, LIFO, Oldest, Newest:
		return true
	}
	return false
}

// Inventory is a per-account container of lots, ordered per its Policy. It
// supports Push, Pop, Unpop (put back at the head), iteration in selection
// order, and Len.
type Inventory struct {
	policy Policy
	// fifo/lifo use a plain slice; oldest/newest use a heap.
	slice []*ledger.Lot
	h     *lotHeap
}

// New constructs an empty Inventory using the given policy.
func New(policy Policy) *Inventory {
	inv := &Inventory{policy: policy}
	if policy == Oldest || policy == Newest {
		inv.h = &lotHeap{policy: policy}
		heap.Init(inv.h)
	}
	return inv
}

// Len returns the number of lots currently held.
func (inv *Inventory) Len() int {
	if inv.h != nil {
		return inv.h.Len()
	}
	return len(inv.slice)
}

// Push adds a lot to the inventory.
func (inv *Inventory) Push(l *ledger.Lot) {
	switch inv.policy {
	case FIFO, LIFO:
		inv.slice = append(inv.slice, l)
	case Oldest, Newest:
		heap.Push(inv.h, l)
	}
}

// Pop removes and returns the lot selected by the policy, or nil if empty.
func (inv *Inventory) Pop() *ledger.Lot {
	switch inv.policy {
	case FIFO:
		if len(inv.slice) == 0 {
			return nil
		}
		l := inv.slice[0]
		inv.slice = inv.slice[1:]
		return l
	case LIFO:
		n := len(inv.slice)
		if n == 0 {
			return nil
		}
		l := inv.slice[n-1]
		inv.slice = inv.slice[:n-1]
		return l
	case Oldest, Newest:
		if inv.h.Len() == 0 {
			return nil
		}
		return heap.Pop(inv.h).(*ledger.Lot)
	}
	panic(fmt.Sprintf("inventory: unknown policy %q", inv.policy))
}

// Unpop puts a lot back at the head of the selection order, used when a
// popped lot had more BTC than was needed and the remainder must be
// returned without disturbing arrival order.
func (inv *Inventory) Unpop(l *ledger.Lot) {
	switch inv.policy {
	case FIFO:
		inv.slice = append([]*ledger.Lot{l}, inv.slice...)
	case LIFO:
		inv.slice = append(inv.slice, l)
	case Oldest, Newest:
		heap.Push(inv.h, l)
	}
}

// Lots returns the held lots in selection order, without removing them.
func (inv *Inventory) Lots() []*ledger.Lot {
	switch inv.policy {
	case FIFO:
		out := make([]*ledger.Lot, len(inv.slice))
		copy(out, inv.slice)
		return out
	case LIFO:
		out := make([]*ledger.Lot, len(inv.slice))
		for i, l := range inv.slice {
			out[len(inv.slice)-1-i] = l
		}
		return out
	case Oldest, Newest:
		cp := make([]*ledger.Lot, len(inv.h.items))
		copy(cp, inv.h.items)
		tmp := &lotHeap{policy: inv.policy, items: cp}
		heap.Init(tmp)
		out := make([]*ledger.Lot, 0, tmp.Len())
		for tmp.Len() > 0 {
			out = append(out, heap.Pop(tmp).(*ledger.Lot))
		}
		return out
	}
	return nil
}

// lotHeap implements container/heap.Interface, keyed by (timestamp,
// transaction.ID) ascending for Oldest, descending-timestamp/ascending-id
// for Newest.
type lotHeap struct {
	policy Policy
	items  []*ledger.Lot
}

func (h *lotHeap) less(i, j *ledger.Lot) bool {
	if !i.Timestamp.Equal(j.Timestamp) {
		if h.policy == Newest {
			return i.Timestamp.After(j.Timestamp)
		}
		return i.Timestamp.Before(j.Timestamp)
	}
	return transactionID(i) < transactionID(j)
}

func transactionID(l *ledger.Lot) string {
	if l.Transaction == nil {
		return ""
	}
	return l.Transaction.ID
}

func (h *lotHeap) Len() int            { return len(h.items) }
func (h *lotHeap) Less(i, j int) bool  { return h.less(h.items[i], h.items[j]) }
func (h *lotHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *lotHeap) Push(x interface{})  { h.items = append(h.items, x.(*ledger.Lot)) }
func (h *lotHeap) Pop() interface{} {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}
