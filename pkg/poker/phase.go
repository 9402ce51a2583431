package poker

import "errors"

// Phase is a table's position in the hand lifecycle. The cycle has no
// terminal state.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseWaiting
	PhaseStarting
	PhaseDealing
	PhasePreFlop
	PhaseFlop
	PhaseTurn
	PhaseRiver
	PhaseShowdownReveal
	PhasePayoutAnimation
	PhaseSocialBanter
)

// String returns the wire label for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "LOBBY"
	case PhaseWaiting:
		return "WAITING"
	case PhaseStarting:
		return "STARTING"
	case PhaseDealing:
		return "DEALING"
	case PhasePreFlop:
		return "PRE_FLOP"
	case PhaseFlop:
		return "FLOP"
	case PhaseTurn:
		return "TURN"
	case PhaseRiver:
		return "RIVER"
	case PhaseShowdownReveal:
		return "SHOWDOWN_REVEAL"
	case PhasePayoutAnimation:
		return "PAYOUT_ANIMATION"
	case PhaseSocialBanter:
		return "SOCIAL_BANTER"
	default:
		return "UNKNOWN"
	}
}

// phaseTransitions is the allowed-transition table driven through the
// statemachine package. Any transition not listed here is a
// programming error.
func phaseTransitions() map[Phase][]Phase {
	return map[Phase][]Phase{
		PhaseLobby:    {PhaseWaiting},
		PhaseWaiting:  {PhaseStarting},
		PhaseStarting: {PhaseDealing, PhaseWaiting},
		PhaseDealing:  {PhasePreFlop},
		// Each street can close into the next street, or short-circuit
		// to payout when all but one player fold.
		PhasePreFlop:         {PhaseFlop, PhasePayoutAnimation},
		PhaseFlop:            {PhaseTurn, PhasePayoutAnimation},
		PhaseTurn:            {PhaseRiver, PhasePayoutAnimation},
		PhaseRiver:           {PhaseShowdownReveal, PhasePayoutAnimation},
		PhaseShowdownReveal:  {PhasePayoutAnimation},
		PhasePayoutAnimation: {PhaseSocialBanter},
		PhaseSocialBanter:    {PhaseWaiting},
	}
}

// inHand reports whether the phase is part of an active hand.
func (p Phase) inHand() bool {
	return p >= PhaseDealing && p <= PhasePayoutAnimation
}

// bettingStreet reports whether the phase is a betting round.
func (p Phase) bettingStreet() bool {
	return p >= PhasePreFlop && p <= PhaseRiver
}

// ActionType is a tagged betting action kind.
type ActionType int

const (
	ActionFold ActionType = iota
	ActionCheck
	ActionCall
	ActionRaise
	ActionAllIn
)

// String returns the wire label for the action type.
func (a ActionType) String() string {
	switch a {
	case ActionFold:
		return "FOLD"
	case ActionCheck:
		return "CHECK"
	case ActionCall:
		return "CALL"
	case ActionRaise:
		return "RAISE"
	case ActionAllIn:
		return "ALL_IN"
	default:
		return "UNKNOWN"
	}
}

// ParseActionType converts a wire label to an ActionType.
func ParseActionType(s string) (ActionType, error) {
	switch s {
	case "FOLD":
		return ActionFold, nil
	case "CHECK":
		return ActionCheck, nil
	case "CALL":
		return ActionCall, nil
	case "RAISE":
		return ActionRaise, nil
	case "ALL_IN":
		return ActionAllIn, nil
	default:
		return 0, ErrInvalidAction
	}
}

// Action is a betting action. Amount is the total new
// current-bet-to-match and is only meaningful for raises.
type Action struct {
	Type   ActionType
	Amount int64
}

// Protocol errors surfaced to the offending client; the table state is
// unchanged when one of these is returned.
var (
	ErrSeatOccupied  = errors.New("poker: seat occupied")
	ErrTableFull     = errors.New("poker: table full")
	ErrAlreadySeated = errors.New("poker: already seated")
	ErrNotSeated     = errors.New("poker: not seated at this table")
	ErrNotYourTurn   = errors.New("poker: not your turn to act")
	ErrInvalidAction = errors.New("poker: invalid action")
	ErrTablePaused   = errors.New("poker: table paused pending ledger recovery")
)
