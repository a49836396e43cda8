package exchange

import (
	"github.com/tidwall/btree"

	"trading-backtest/internal/model"
)

type restingOrder struct {
	id        model.OrderID
	symbol    string
	kind      model.OrderKind
	side      model.Side
	price     model.Cents
	remaining int64
	trader    model.TraderID
}

// level is one price in the book. Orders are kept in arrival order so that
// matching within a price is FIFO.
type level struct {
	price  model.Cents
	orders []*restingOrder
}

func (l *level) remove(id model.OrderID) bool {
	for i, o := range l.orders {
		if o.id == id {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return true
		}
	}
	return false
}

func (l *level) quantity() int64 {
	var q int64
	for _, o := range l.orders {
		q += o.remaining
	}
	return q
}

// book holds both sides for one symbol, keyed by price in cents. Bids are
// read from the max end, asks from the min end.
type book struct {
	symbol string
	bids   btree.Map[model.Cents, *level]
	asks   btree.Map[model.Cents, *level]
}

func newBook(symbol string) *book {
	return &book{symbol: symbol}
}

func (b *book) side(s model.Side) *btree.Map[model.Cents, *level] {
	if s == model.SideBuy {
		return &b.bids
	}
	return &b.asks
}

// bestOpposing returns the best level an incoming order on side s could
// trade against.
func (b *book) bestOpposing(s model.Side) (*level, bool) {
	if s == model.SideBuy {
		_, lvl, ok := b.asks.Min()
		return lvl, ok
	}
	_, lvl, ok := b.bids.Max()
	return lvl, ok
}

func (b *book) rest(o *restingOrder) {
	m := b.side(o.side)
	lvl, ok := m.Get(o.price)
	if !ok {
		lvl = &level{price: o.price}
		m.Set(o.price, lvl)
	}
	lvl.orders = append(lvl.orders, o)
}

func (b *book) cancel(o *restingOrder) bool {
	m := b.side(o.side)
	lvl, ok := m.Get(o.price)
	if !ok {
		return false
	}
	removed := lvl.remove(o.id)
	if len(lvl.orders) == 0 {
		m.Delete(o.price)
	}
	return removed
}

// crosses reports whether a limit order at price on side s can trade at
// the opposing level price.
func crosses(s model.Side, price, opposing model.Cents) bool {
	if s == model.SideBuy {
		return price >= opposing
	}
	return price <= opposing
}

// Quote is a top-of-book view for one side.
type Quote struct {
	Price    model.Cents
	Quantity int64
}

// BookSnapshot is a point-in-time view of one symbol's book.
type BookSnapshot struct {
	Symbol  string
	BestBid *Quote
	BestAsk *Quote
	Resting int
}

func (b *book) snapshot() BookSnapshot {
	snap := BookSnapshot{Symbol: b.symbol}
	if p, lvl, ok := b.bids.Max(); ok {
		snap.BestBid = &Quote{Price: p, Quantity: lvl.quantity()}
	}
	if p, lvl, ok := b.asks.Min(); ok {
		snap.BestAsk = &Quote{Price: p, Quantity: lvl.quantity()}
	}
	count := func(_ model.Cents, lvl *level) bool {
		snap.Resting += len(lvl.orders)
		return true
	}
	b.bids.Scan(count)
	b.asks.Scan(count)
	return snap
}
