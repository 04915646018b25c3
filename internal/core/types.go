package core

// Action is the discrete decision taken by the agent at each step.
type Action int

const (
	Buy  Action = 0
	Sell Action = 1
	Hold Action = 2
)

// NumActions is the output arity of the policy.
const NumActions = 3

func (a Action) String() string {
	switch a {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case Hold:
		return "HOLD"
	}
	return "UNKNOWN"
}

// Valid reports whether a is one of Buy, Sell or Hold.
func (a Action) Valid() bool {
	return a >= Buy && a <= Hold
}

// ParseAction is the inverse of Action.String.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "BUY":
		return Buy, true
	case "SELL":
		return Sell, true
	case "HOLD":
		return Hold, true
	}
	return Hold, false
}

// State is the observation handed to the policy: (price, balance, shares).
type State struct {
	Price   float64 `json:"price"`
	Balance float64 `json:"balance"`
	Shares  int     `json:"shares"`
}

// Equity is cash plus the value of held shares at the current price.
func (s State) Equity() float64 {
	return s.Balance + float64(s.Shares)*s.Price
}

// Vector flattens the state into the policy input layout.
func (s State) Vector() []float64 {
	return []float64{s.Price, s.Balance, float64(s.Shares)}
}

// Fill is an executed BUY or SELL. Ignored actions produce no fill.
type Fill struct {
	Step    int     `json:"step"`
	Side    Action  `json:"side"`
	Price   float64 `json:"price"`
	Balance float64 `json:"balance"` // after execution
	Shares  int     `json:"shares"`  // after execution
}

// Phase is the episode lifecycle.
type Phase int

const (
	PhaseReady Phase = iota
	PhaseRunning
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseRunning:
		return "running"
	case PhaseTerminal:
		return "terminal"
	}
	return "unknown"
}
