package server

import (
	"encoding/json"

	"github.com/holdemlabs/holdemd/pkg/poker"
)

// Client -> server event names.
const (
	EventReqJoin      = "REQ_JOIN"
	EventReqReconnect = "REQ_RECONNECT"
	EventReqSit       = "REQ_SIT"
	EventReqReady     = "REQ_READY"
	EventReqAction    = "REQ_ACTION"
	EventReqSocial    = "REQ_SOCIAL"
	EventReqLeave     = "REQ_LEAVE"
)

// Server -> client event names.
const (
	EventAuthSuccess  = "AUTH_SUCCESS"
	EventAuthFailure  = "AUTH_FAILURE"
	EventGameSnapshot = "GAME_SNAPSHOT"
	EventStatePatch   = "STATE_PATCH"
	EventPlayerAction = "PLAYER_ACTION"
	EventHandResult   = "HAND_RESULT"
	EventError        = "ERROR"
	EventSocialBatch  = "SOCIAL_BATCH"
)

// Stable error codes; messages are human-readable, codes are not
// allowed to drift.
const (
	CodeAuthFailed        = "AUTH_FAILED"
	CodeInvalidTicket     = "INVALID_TICKET"
	CodeTableFull         = "TABLE_FULL"
	CodeSeatTaken         = "SEAT_TAKEN"
	CodeInvalidAction     = "INVALID_ACTION"
	CodeNotYourTurn       = "NOT_YOUR_TURN"
	CodeInsufficientChips = "INSUFFICIENT_CHIPS"
	CodeAlreadyInTable    = "ALREADY_IN_TABLE"
	CodeTableNotFound     = "TABLE_NOT_FOUND"
)

// Envelope is the tagged wire record: a string event name and an
// object payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals a payload into an envelope.
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Payload: raw}, nil
}

// ReqJoinPayload authenticates and binds to a table's channel.
type ReqJoinPayload struct {
	AuthTicket string `json:"authTicket"`
	TableID    string `json:"tableId"`
}

// ReqReconnectPayload rebinds an existing session.
type ReqReconnectPayload struct {
	AuthTicket     string `json:"authTicket"`
	TableID        string `json:"tableId"`
	LastSequenceID uint64 `json:"lastSequenceId"`
	SessionToken   string `json:"sessionToken,omitempty"`
}

// ReqSitPayload seats the player at a specific index.
type ReqSitPayload struct {
	SeatIndex int   `json:"seatIndex"`
	BuyIn     int64 `json:"buyIn"`
}

// ReqActionPayload is a betting action. Amount is the total new
// current-bet-to-match and is required for RAISE.
type ReqActionPayload struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount,omitempty"`
}

// ReqSocialPayload is batched onto the social channel and never routed
// through the table state machine.
type ReqSocialPayload struct {
	Type       string `json:"type"`
	TargetSeat *int   `json:"targetSeat,omitempty"`
}

// AuthSuccessPayload is the authentication result.
type AuthSuccessPayload struct {
	PlayerID     string `json:"steamId"`
	DisplayName  string `json:"displayName"`
	SessionToken string `json:"sessionToken"`
	TableID      string `json:"tableId"`
}

// AuthFailurePayload carries the failure code.
type AuthFailurePayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// PlayerActionPayload is the public action broadcast.
type PlayerActionPayload struct {
	PlayerID string `json:"steamId"`
	Action   string `json:"action"`
	Amount   int64  `json:"amount,omitempty"`
	NewPot   int64  `json:"newPot"`
}

// HandResultWinner is one winner in a HAND_RESULT broadcast.
type HandResultWinner struct {
	PlayerID string       `json:"steamId"`
	Cards    []poker.Card `json:"cards,omitempty"`
	HandRank string       `json:"handRank,omitempty"`
	Amount   int64        `json:"amount"`
}

// HandResultPot is one pot in a HAND_RESULT broadcast.
type HandResultPot struct {
	Amount   int64    `json:"amount"`
	Eligible []string `json:"eligible"`
}

// HandResultPayload is broadcast at showdown.
type HandResultPayload struct {
	Winners []HandResultWinner `json:"winners"`
	Pots    []HandResultPot    `json:"pots"`
}

// ErrorPayload is a per-client error with a stable code.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SocialItem is one entry in a social batch.
type SocialItem struct {
	FromID     string `json:"steamId,omitempty"`
	Type       string `json:"type"`
	TargetSeat *int   `json:"targetSeat,omitempty"`
	Text       string `json:"text,omitempty"`
}

// SocialBatchPayload is a flushed slice of the social channel.
type SocialBatchPayload struct {
	TableID string       `json:"tableId"`
	Items   []SocialItem `json:"items"`
}

// TableSummary is the public listing entry for a live table.
type TableSummary struct {
	TableID     string `json:"tableId"`
	SeatsFilled int    `json:"seatsFilled"`
	MaxSeats    int    `json:"maxSeats"`
	Phase       string `json:"phase"`
	SmallBlind  int64  `json:"smallBlind"`
	BigBlind    int64  `json:"bigBlind"`
}
