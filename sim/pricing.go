package sim

import (
	"fmt"
	"sync"

	"github.com/rustyeddy/recovery/broker"
)

// PriceStore holds the latest quote per symbol.
type PriceStore struct {
	mu     sync.RWMutex
	quotes map[string]broker.Quote
}

func NewPriceStore() *PriceStore {
	return &PriceStore{quotes: make(map[string]broker.Quote)}
}

func (ps *PriceStore) Set(q broker.Quote) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.quotes[q.Symbol] = q
}

func (ps *PriceStore) Delete(symbol string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.quotes, symbol)
}

func (ps *PriceStore) Get(symbol string) (broker.Quote, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	q, ok := ps.quotes[symbol]
	if !ok {
		return broker.Quote{}, fmt.Errorf("%w for %s", broker.ErrNoPrice, symbol)
	}
	return q, nil
}
