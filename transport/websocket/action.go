package websocket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Action tags every envelope exchanged with the draw server. The set is closed:
// anything not declared here is rejected by Parse.
type Action string

// Client to server.
const (
	ActionPing           Action = "ping"
	ActionLogin          Action = "login"
	ActionStartGame      Action = "start_game"
	ActionDrawNumber     Action = "draw_number"
	ActionUndoLast       Action = "undo_last"
	ActionRegisterTicket Action = "register_ticket"
	ActionRegisterRandom Action = "register_random"
	ActionClearSales     Action = "clear_sales"
)

// Server to client.
const (
	ActionPong             Action = "pong"
	ActionLoginResponse    Action = "login_response"
	ActionSyncStatus       Action = "sync_status"
	ActionGameStarted      Action = "game_started"
	ActionNumberDrawn      Action = "number_drawn"
	ActionGameUpdate       Action = "game_update"
	ActionNumberCancelled  Action = "number_cancelled"
	ActionTicketRegistered Action = "ticket_registered"
	ActionSalesCleared     Action = "sales_cleared"
)

// Local lifecycle events. These are dispatched by the Client and never
// travel over the wire.
const (
	EventConnected    Action = "connected"
	EventDisconnected Action = "disconnected"
	EventLoginSuccess Action = "login_success"
	EventLoginError   Action = "login_error"
)

// inbound maps each server action to a constructor for its payload type.
var inbound = map[Action]func() any{
	ActionPong:             func() any { return &Empty{} },
	ActionLoginResponse:    func() any { return &LoginResponse{} },
	ActionSyncStatus:       func() any { return &SyncStatus{} },
	ActionGameStarted:      func() any { return &Empty{} },
	ActionNumberDrawn:      func() any { return &NumberDrawn{} },
	ActionGameUpdate:       func() any { return &GameUpdate{} },
	ActionNumberCancelled:  func() any { return &NumberCancelled{} },
	ActionTicketRegistered: func() any { return &TicketRegistered{} },
	ActionSalesCleared:     func() any { return &SalesCleared{} },
}

var outbound = map[Action]bool{
	ActionPing:           true,
	ActionLogin:          true,
	ActionStartGame:      true,
	ActionDrawNumber:     true,
	ActionUndoLast:       true,
	ActionRegisterTicket: true,
	ActionRegisterRandom: true,
	ActionClearSales:     true,
}

// IsLocal reports whether the action is a client-side lifecycle event.
func (a Action) IsLocal() bool {
	switch a {
	case EventConnected, EventDisconnected, EventLoginSuccess, EventLoginError:
		return true
	}
	return false
}

// IsInbound reports whether the server may send this action.
func (a Action) IsInbound() bool {
	_, ok := inbound[a]
	return ok
}

// IsOutbound reports whether the client may send this action.
func (a Action) IsOutbound() bool {
	return outbound[a]
}

// InboundActions lists every action the server may send, sorted.
func InboundActions() []Action {
	out := make([]Action, 0, len(inbound))
	for a := range inbound {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MaxBall is the highest number in the draw.
const MaxBall = 75

// Empty is the payload of actions that carry nothing beyond the tag.
type Empty struct{}

type LoginRequest struct {
	Key string `json:"key"`
}

// LoginResponse carries the server verdict on a login attempt.
type LoginResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the server accepted the credential.
func (r LoginResponse) OK() bool {
	return r.Status == "ok"
}

// NearWins groups formatted barcodes by the count of numbers still missing.
type NearWins map[string][]string

// SyncStatus is pushed by the server right after a connection is accepted.
type SyncStatus struct {
	TotalRegistered int      `json:"totalRegistered"`
	DrawnNumbers    []int    `json:"drawnNumbers"`
	Winners         []string `json:"winners"`
	NearWins        NearWins `json:"near_wins"`
}

type NumberDrawn struct {
	Number int `json:"number"`
}

type GameUpdate struct {
	Winners  []string `json:"winners"`
	NearWins NearWins `json:"near_wins"`
}

type NumberCancelled struct {
	Number   int      `json:"number"`
	Winners  []string `json:"winners"`
	NearWins NearWins `json:"near_wins"`
}

// TicketRef is either a formatted barcode or the number 0, which the server
// sends after a batch registration.
type TicketRef struct {
	Barcode string
	Batch   bool
}

func (t *TicketRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = TicketRef{Barcode: s}
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ticket reference must be a string or number: %s", data)
	}
	if n == 0 {
		*t = TicketRef{Batch: true}
		return nil
	}
	*t = TicketRef{Barcode: strconv.Itoa(n)}
	return nil
}

func (t TicketRef) MarshalJSON() ([]byte, error) {
	if t.Batch {
		return []byte("0"), nil
	}
	return json.Marshal(t.Barcode)
}

type TicketRegistered struct {
	TicketID        TicketRef `json:"ticketId"`
	TotalRegistered int       `json:"totalRegistered"`
}

type SalesCleared struct {
	TotalRegistered int `json:"totalRegistered"`
}

type DrawNumber struct {
	Number int `json:"number"`
}

type RegisterTicket struct {
	Barcode int `json:"barcode"`
}

type RegisterRandom struct {
	Count int `json:"count"`
}
