package core

import "errors"

var (
	ErrEmptyPrices     = errors.New("price sequence is empty")
	ErrNegativeBalance = errors.New("starting balance is negative")
)

// DefaultStartBalance matches the dashboard's initial cash.
const DefaultStartBalance = 10000.0

// MarketEnv replays a fixed price sequence one step at a time and keeps
// the simulated cash/share holdings. It is not safe for concurrent use;
// each session owns one.
type MarketEnv struct {
	prices       []float64
	startBalance float64

	index      int
	balance    float64
	shares     int
	prevEquity float64
	stepped    bool
	fills      []Fill
}

func NewMarketEnv(prices []float64, startBalance float64) (*MarketEnv, error) {
	if len(prices) == 0 {
		return nil, ErrEmptyPrices
	}
	if startBalance < 0 {
		return nil, ErrNegativeBalance
	}
	e := &MarketEnv{
		prices:       append([]float64(nil), prices...),
		startBalance: startBalance,
	}
	e.Reset()
	return e, nil
}

// Reset starts a new episode and returns the first observation.
func (e *MarketEnv) Reset() State {
	e.index = 0
	e.balance = e.startBalance
	e.shares = 0
	e.prevEquity = e.startBalance
	e.stepped = false
	e.fills = e.fills[:0]
	return e.State()
}

// State returns the observation at the current index.
func (e *MarketEnv) State() State {
	return State{
		Price:   e.prices[e.index],
		Balance: e.balance,
		Shares:  e.shares,
	}
}

// Step executes action at the current price, advances one index and
// returns the new state, the equity delta and whether the episode is over.
// Unaffordable buys and sells without inventory are ignored. Once the last
// price is reached every call returns the unchanged state, 0 and true.
func (e *MarketEnv) Step(action Action) (State, float64, bool) {
	if e.exhausted() {
		return e.State(), 0, true
	}

	price := e.prices[e.index]
	switch action {
	case Buy:
		if e.balance >= price {
			e.balance -= price
			e.shares++
			e.record(action, price)
		}
	case Sell:
		if e.shares > 0 {
			e.balance += price
			e.shares--
			e.record(action, price)
		}
	}

	e.index++
	e.stepped = true

	next := e.State()
	equity := next.Equity()
	reward := equity - e.prevEquity
	e.prevEquity = equity

	return next, reward, e.exhausted()
}

func (e *MarketEnv) record(side Action, price float64) {
	e.fills = append(e.fills, Fill{
		Step:    e.index,
		Side:    side,
		Price:   price,
		Balance: e.balance,
		Shares:  e.shares,
	})
}

func (e *MarketEnv) exhausted() bool {
	return e.index >= len(e.prices)-1
}

// Phase reports where the episode stands. A single-price episode is
// terminal straight after Reset since there is no step left to take.
func (e *MarketEnv) Phase() Phase {
	switch {
	case e.exhausted():
		return PhaseTerminal
	case e.stepped:
		return PhaseRunning
	}
	return PhaseReady
}

// StepIndex is the index of the current price.
func (e *MarketEnv) StepIndex() int { return e.index }

// Len is the number of prices in the episode.
func (e *MarketEnv) Len() int { return len(e.prices) }

func (e *MarketEnv) StartBalance() float64 { return e.startBalance }

// Fills returns a copy of the executed trades so far.
func (e *MarketEnv) Fills() []Fill {
	out := make([]Fill, len(e.fills))
	copy(out, e.fills)
	return out
}
