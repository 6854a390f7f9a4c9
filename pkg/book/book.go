package book

import (
	"container/heap"
	"sort"
)

// levelRef locates a resting order: which side, at which price.
type levelRef struct {
	side  Side
	price int64
}

// Book is one market's bid/ask structure. Within a price level orders are
// FIFO: new orders rank behind existing ones at the same price. An order id
// appears in at most one level; a level is removed once its queue empties.
type Book struct {
	bidHeap maxPriceHeap
	askHeap minPriceHeap

	bids map[int64][]*Order // price -> FIFO queue
	asks map[int64][]*Order

	index map[uint64]levelRef // order id -> location
}

func New() *Book {
	b := &Book{
		bids:  make(map[int64][]*Order),
		asks:  make(map[int64][]*Order),
		index: make(map[uint64]levelRef),
	}
	heap.Init(&b.bidHeap)
	heap.Init(&b.askHeap)
	return b
}

// Rest inserts an order at the tail of its price level, creating the level
// if needed.
func (b *Book) Rest(o *Order) {
	q := b.queue(o.Side)
	if len(q[o.Price]) == 0 {
		if o.Side == Buy {
			heap.Push(&b.bidHeap, o.Price)
		} else {
			heap.Push(&b.askHeap, o.Price)
		}
	}
	q[o.Price] = append(q[o.Price], o)
	b.index[o.ID] = levelRef{side: o.Side, price: o.Price}
}

// Cancel removes an order from its level. Returns the order, or nil if the
// id is not resting in the book.
func (b *Book) Cancel(id uint64) *Order {
	ref, ok := b.index[id]
	if !ok {
		return nil
	}
	q := b.queue(ref.side)
	level := q[ref.price]
	for i, o := range level {
		if o.ID != id {
			continue
		}
		q[ref.price] = append(level[:i], level[i+1:]...)
		if len(q[ref.price]) == 0 {
			delete(q, ref.price)
			b.removeFromHeap(ref.side, ref.price)
		}
		delete(b.index, id)
		return o
	}
	// Index said the order was here; the book is corrupt if it was not.
	delete(b.index, id)
	return nil
}

// Contains reports whether the order id is resting in the book.
func (b *Book) Contains(id uint64) bool {
	_, ok := b.index[id]
	return ok
}

// BestBid returns the highest bid price.
func (b *Book) BestBid() (int64, bool) {
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

// BestAsk returns the lowest ask price.
func (b *Book) BestAsk() (int64, bool) {
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// Head returns the oldest order at the best price level of the given side,
// or nil if that side is empty.
func (b *Book) Head(side Side) *Order {
	price, ok := b.best(side)
	if !ok {
		return nil
	}
	level := b.queue(side)[price]
	if len(level) == 0 {
		return nil
	}
	return level[0]
}

// RemoveHead pops the oldest order at the best price level of the given
// side, removing the level (and its heap entry) if it empties.
func (b *Book) RemoveHead(side Side) {
	price, ok := b.best(side)
	if !ok {
		return
	}
	q := b.queue(side)
	level := q[price]
	if len(level) == 0 {
		return
	}
	head := level[0]
	q[price] = level[1:]
	delete(b.index, head.ID)
	if len(q[price]) == 0 {
		delete(q, price)
		b.removeFromHeap(side, price)
	}
}

// Level is an aggregated price level for snapshots.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// BidLevels returns aggregated bid levels, best (highest) first.
func (b *Book) BidLevels() []Level {
	return levels(b.bids, func(i, j Level) bool { return i.Price > j.Price })
}

// AskLevels returns aggregated ask levels, best (lowest) first.
func (b *Book) AskLevels() []Level {
	return levels(b.asks, func(i, j Level) bool { return i.Price < j.Price })
}

func levels(q map[int64][]*Order, less func(i, j Level) bool) []Level {
	out := make([]Level, 0, len(q))
	for price, orders := range q {
		if len(orders) == 0 {
			continue
		}
		var total int64
		for _, o := range orders {
			total += o.Remaining
		}
		out = append(out, Level{Price: price, Qty: total})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (b *Book) queue(side Side) map[int64][]*Order {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) best(side Side) (int64, bool) {
	if side == Buy {
		return b.BestBid()
	}
	return b.BestAsk()
}

// removeFromHeap drops a price from the side's heap. Linear scan; levels are
// removed rarely relative to matches at the top of book.
func (b *Book) removeFromHeap(side Side, price int64) {
	if side == Buy {
		for i := 0; i < b.bidHeap.Len(); i++ {
			if b.bidHeap[i] == price {
				heap.Remove(&b.bidHeap, i)
				return
			}
		}
		return
	}
	for i := 0; i < b.askHeap.Len(); i++ {
		if b.askHeap[i] == price {
			heap.Remove(&b.askHeap, i)
			return
		}
	}
}
