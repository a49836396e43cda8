package strategy

import "github.com/shopspring/decimal"

// priceWindow is a fixed-capacity ring of the most recent prices. Pushing
// into a full window evicts the oldest entry.
type priceWindow struct {
	buf   []decimal.Decimal
	start int
	n     int
}

func newPriceWindow(capacity int) *priceWindow {
	return &priceWindow{buf: make([]decimal.Decimal, capacity)}
}

func (w *priceWindow) push(p decimal.Decimal) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = p
		w.n++
		return
	}
	w.buf[w.start] = p
	w.start = (w.start + 1) % len(w.buf)
}

func (w *priceWindow) len() int { return w.n }

func (w *priceWindow) full() bool { return w.n == len(w.buf) }

// sumLast sums the k most recent entries.
func (w *priceWindow) sumLast(k int) decimal.Decimal {
	if k > w.n {
		k = w.n
	}
	sum := decimal.Zero
	for i := w.n - k; i < w.n; i++ {
		sum = sum.Add(w.buf[(w.start+i)%len(w.buf)])
	}
	return sum
}
