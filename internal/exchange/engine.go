// Package exchange is an in-process price-time priority matching engine.
//
// Submissions and cancellations are acknowledged synchronously with an order
// id and then processed in FIFO order on a single worker goroutine, which is
// also where trade and market-data events are delivered to subscribers.
// Delivery is therefore asynchronous with respect to the caller; Flush waits
// until every command queued before it has been processed.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"trading-backtest/internal/model"
)

var (
	ErrStopped      = errors.New("matching engine stopped")
	ErrNotStarted   = errors.New("matching engine not started")
	ErrInvalidOrder = errors.New("invalid order")
)

const queueSize = 4096

type TradeHandler func(model.TradeExecutedEvent)

type MarketDataHandler func(model.MarketDataEvent)

type commandKind int

const (
	cmdSubmit commandKind = iota
	cmdCancel
	cmdFlush
	cmdSnapshot
	cmdStop
)

type command struct {
	kind   commandKind
	order  *restingOrder
	id     model.OrderID
	symbol string
	ack    chan BookSnapshot
}

type Engine struct {
	nextID atomic.Uint64
	cmds   chan command

	// lifecycle
	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}

	subMu      sync.RWMutex
	tradeSubs  []TradeHandler
	marketSubs []MarketDataHandler

	// owned by the worker goroutine
	books     map[string]*book
	index     map[model.OrderID]*restingOrder
	lastPrice map[string]model.Cents
}

func New() *Engine {
	return &Engine{
		cmds:      make(chan command, queueSize),
		done:      make(chan struct{}),
		books:     make(map[string]*book),
		index:     make(map[model.OrderID]*restingOrder),
		lastPrice: make(map[string]model.Cents),
	}
}

func (e *Engine) SubscribeTradeExecuted(fn TradeHandler) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.tradeSubs = append(e.tradeSubs, fn)
}

func (e *Engine) SubscribeMarketData(fn MarketDataHandler) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.marketSubs = append(e.marketSubs, fn)
}

// Start launches the worker. Commands queued before Start are processed
// once it runs. Calling Start more than once is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	go e.run()
}

// Stop processes everything already queued, then halts the worker. It is
// safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	started := e.started
	if started {
		e.cmds <- command{kind: cmdStop}
	}
	e.mu.Unlock()

	if started {
		<-e.done
	}
}

// Submit validates and enqueues an order, returning its id. LIMIT prices
// with more than two fractional digits are rejected with a
// *model.MalformedPriceError.
func (e *Engine) Submit(ctx context.Context, o model.Order) (model.OrderID, error) {
	if err := o.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	ro := &restingOrder{
		symbol:    o.Symbol,
		kind:      o.Kind,
		side:      o.Side,
		remaining: o.Quantity,
		trader:    o.TraderID,
	}
	if o.Kind == model.OrderLimit {
		price, err := model.ParseLimitPrice(o.Price)
		if err != nil {
			return 0, err
		}
		ro.price = price
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return 0, ErrStopped
	}
	ro.id = model.OrderID(e.nextID.Add(1))
	if err := e.enqueue(ctx, command{kind: cmdSubmit, order: ro}); err != nil {
		return 0, err
	}
	return ro.id, nil
}

// Cancel enqueues a cancellation. Cancelling an id that has already filled,
// been cancelled, or never existed is not an error.
func (e *Engine) Cancel(ctx context.Context, id model.OrderID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	return e.enqueue(ctx, command{kind: cmdCancel, id: id})
}

// Flush blocks until all commands queued before it, and the events they
// produced, have been processed.
func (e *Engine) Flush(ctx context.Context) error {
	_, err := e.roundTrip(ctx, command{kind: cmdFlush})
	return err
}

// Snapshot returns the top of book for symbol after all previously queued
// commands have been processed.
func (e *Engine) Snapshot(ctx context.Context, symbol string) (BookSnapshot, error) {
	return e.roundTrip(ctx, command{kind: cmdSnapshot, symbol: symbol})
}

func (e *Engine) roundTrip(ctx context.Context, cmd command) (BookSnapshot, error) {
	cmd.ack = make(chan BookSnapshot, 1)
	e.mu.Lock()
	switch {
	case e.stopped:
		e.mu.Unlock()
		return BookSnapshot{}, ErrStopped
	case !e.started:
		e.mu.Unlock()
		return BookSnapshot{}, ErrNotStarted
	}
	err := e.enqueue(ctx, cmd)
	e.mu.Unlock()
	if err != nil {
		return BookSnapshot{}, err
	}
	select {
	case snap := <-cmd.ack:
		return snap, nil
	case <-ctx.Done():
		return BookSnapshot{}, ctx.Err()
	}
}

// enqueue must be called with e.mu held.
func (e *Engine) enqueue(ctx context.Context, cmd command) error {
	select {
	case e.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer close(e.done)
	for cmd := range e.cmds {
		switch cmd.kind {
		case cmdSubmit:
			e.process(cmd.order)
		case cmdCancel:
			e.cancel(cmd.id)
		case cmdFlush:
			cmd.ack <- BookSnapshot{}
		case cmdSnapshot:
			cmd.ack <- e.bookFor(cmd.symbol).snapshot()
		case cmdStop:
			return
		}
	}
}

func (e *Engine) bookFor(symbol string) *book {
	b, ok := e.books[symbol]
	if !ok {
		b = newBook(symbol)
		e.books[symbol] = b
	}
	return b
}

func (e *Engine) process(o *restingOrder) {
	b := e.bookFor(o.symbol)
	e.match(b, o)
	if o.remaining == 0 {
		return
	}
	if o.kind == model.OrderLimit {
		b.rest(o)
		e.index[o.id] = o
		return
	}
	log.Debug().
		Str("symbol", o.symbol).
		Str("side", string(o.side)).
		Int64("qty", o.remaining).
		Uint64("order_id", uint64(o.id)).
		Msg("market order remainder cancelled, no liquidity")
}

func (e *Engine) match(b *book, o *restingOrder) {
	for o.remaining > 0 {
		lvl, ok := b.bestOpposing(o.side)
		if !ok {
			return
		}
		if o.kind == model.OrderLimit && !crosses(o.side, o.price, lvl.price) {
			return
		}
		for o.remaining > 0 && len(lvl.orders) > 0 {
			resting := lvl.orders[0]
			qty := min(o.remaining, resting.remaining)
			o.remaining -= qty
			resting.remaining -= qty
			if resting.remaining == 0 {
				lvl.orders = lvl.orders[1:]
				delete(e.index, resting.id)
			}
			e.publishTrade(model.TradeExecutedEvent{
				Symbol:           o.symbol,
				Price:            lvl.price,
				Quantity:         qty,
				AggressingID:     o.id,
				AggressingSide:   o.side,
				AggressingTrader: o.trader,
				RestingID:        resting.id,
				RestingTrader:    resting.trader,
			})
			if last, seen := e.lastPrice[o.symbol]; !seen || last != lvl.price {
				e.lastPrice[o.symbol] = lvl.price
				e.publishMarketData(model.MarketDataEvent{Symbol: o.symbol, LastPrice: lvl.price})
			}
		}
		if len(lvl.orders) == 0 {
			b.side(o.side.Opposite()).Delete(lvl.price)
		}
	}
}

func (e *Engine) cancel(id model.OrderID) {
	o, ok := e.index[id]
	if !ok {
		log.Debug().Uint64("order_id", uint64(id)).Msg("cancel ignored, order not resting")
		return
	}
	delete(e.index, id)
	e.bookFor(o.symbol).cancel(o)
}

func (e *Engine) publishTrade(ev model.TradeExecutedEvent) {
	e.subMu.RLock()
	subs := append([]TradeHandler(nil), e.tradeSubs...)
	e.subMu.RUnlock()
	for _, fn := range subs {
		deliver(func() { fn(ev) })
	}
}

func (e *Engine) publishMarketData(ev model.MarketDataEvent) {
	e.subMu.RLock()
	subs := append([]MarketDataHandler(nil), e.marketSubs...)
	e.subMu.RUnlock()
	for _, fn := range subs {
		deliver(func() { fn(ev) })
	}
}

// deliver isolates the worker from a panicking subscriber.
func deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("event subscriber panicked")
		}
	}()
	fn()
}
