package poker

// Player is a table-local binding of a verified identity to a seat.
// Hole cards never leave the table process except through the
// serializer.
type Player struct {
	// Identity
	ID   string
	Name string

	// Table-level state
	Seat    int
	IsReady bool
	Leaving bool // unseat requested mid-hand; seat frees at hand end

	// Hand-level state (reset between hands)
	Stack         int64
	StartingStack int64
	HoleCards     []Card
	RoundBet      int64 // wager committed in the current betting round
	HasFolded     bool
	IsAllIn       bool
	HasActed      bool // acted since the round opened or was reopened

	// Populated during showdown
	HandValue *HandValue
}

// NewPlayer creates a binding for the given identity with a buy-in
// stack, not yet ready.
func NewPlayer(id, name string, seat int, buyIn int64) *Player {
	return &Player{
		ID:            id,
		Name:          name,
		Seat:          seat,
		Stack:         buyIn,
		StartingStack: buyIn,
		HoleCards:     make([]Card, 0, 2),
	}
}

// ResetForHand clears hand-level state at the start of a new hand.
func (p *Player) ResetForHand() {
	p.HoleCards = make([]Card, 0, 2)
	p.StartingStack = p.Stack
	p.RoundBet = 0
	p.HasFolded = false
	p.IsAllIn = false
	p.HasActed = false
	p.HandValue = nil
}

// StillIn reports whether the binding is contesting the current hand.
func (p *Player) StillIn() bool {
	return !p.HasFolded
}

// CanAct reports whether the binding can take a betting action.
func (p *Player) CanAct() bool {
	return !p.HasFolded && !p.IsAllIn
}

// commit moves up to amount chips from the stack into the current
// round's wager, flagging all-in when the stack empties. It returns
// the amount actually committed.
func (p *Player) commit(amount int64) int64 {
	if amount > p.Stack {
		amount = p.Stack
	}
	p.Stack -= amount
	p.RoundBet += amount
	if p.Stack == 0 {
		p.IsAllIn = true
	}
	return amount
}
