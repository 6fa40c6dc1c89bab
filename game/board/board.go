package board

import (
	"sync"
	"time"

	"github.com/wricardo/bingo-client/transport/websocket"
)

// HistoryEntry records one change to the drawn numbers
type HistoryEntry struct {
	Number    int       `json:"number"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is a point-in-time copy of the draw as the server last reported it
type State struct {
	Synced          bool                `json:"synced"`
	DrawnNumbers    []int               `json:"drawn_numbers"`
	TotalRegistered int                 `json:"total_registered"`
	Winners         []string            `json:"winners"`
	NearWins        map[string][]string `json:"near_wins"`
	LastTicket      string              `json:"last_ticket,omitempty"`
	Games           int                 `json:"games"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// LastNumber returns the most recent drawn number, or 0 before the first draw
func (s State) LastNumber() int {
	if len(s.DrawnNumbers) == 0 {
		return 0
	}
	return s.DrawnNumbers[len(s.DrawnNumbers)-1]
}

// Subscriber is the part of the websocket client the board listens on
type Subscriber interface {
	On(action websocket.Action, l websocket.Listener)
}

// Board mirrors server broadcasts into a queryable State. It is safe for
// concurrent use.
type Board struct {
	mu      sync.RWMutex
	state   State
	history []HistoryEntry
	now     func() time.Time
}

// New creates an empty, unsynced board
func New() *Board {
	return &Board{
		state: emptyState(),
		now:   time.Now,
	}
}

func emptyState() State {
	return State{
		DrawnNumbers: []int{},
		Winners:      []string{},
		NearWins:     map[string][]string{},
	}
}

// Attach subscribes the board to every broadcast it tracks
func (b *Board) Attach(s Subscriber) {
	for _, action := range []websocket.Action{
		websocket.ActionSyncStatus,
		websocket.ActionGameStarted,
		websocket.ActionNumberDrawn,
		websocket.ActionGameUpdate,
		websocket.ActionNumberCancelled,
		websocket.ActionTicketRegistered,
		websocket.ActionSalesCleared,
		websocket.EventDisconnected,
	} {
		s.On(action, b.Apply)
	}
}

// Apply folds one envelope into the board. Envelopes it does not track, or
// whose payload does not match their action, are ignored.
func (b *Board) Apply(e websocket.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	switch e.Action {
	case websocket.ActionSyncStatus:
		p, ok := websocket.As[websocket.SyncStatus](e)
		if !ok {
			return
		}
		b.state.Synced = true
		b.state.TotalRegistered = p.TotalRegistered
		b.state.DrawnNumbers = append([]int{}, p.DrawnNumbers...)
		b.state.Winners = copyStrings(p.Winners)
		b.state.NearWins = copyNearWins(p.NearWins)
		b.history = b.history[:0]
		for _, n := range p.DrawnNumbers {
			b.history = append(b.history, HistoryEntry{Number: n, Timestamp: now})
		}

	case websocket.ActionGameStarted:
		b.state.DrawnNumbers = []int{}
		b.state.Winners = []string{}
		b.state.NearWins = map[string][]string{}
		b.state.Games++
		b.history = b.history[:0]

	case websocket.ActionNumberDrawn:
		p, ok := websocket.As[websocket.NumberDrawn](e)
		if !ok {
			return
		}
		b.state.DrawnNumbers = append(b.state.DrawnNumbers, p.Number)
		b.history = append(b.history, HistoryEntry{Number: p.Number, Timestamp: now})

	case websocket.ActionGameUpdate:
		p, ok := websocket.As[websocket.GameUpdate](e)
		if !ok {
			return
		}
		b.state.Winners = copyStrings(p.Winners)
		b.state.NearWins = copyNearWins(p.NearWins)

	case websocket.ActionNumberCancelled:
		p, ok := websocket.As[websocket.NumberCancelled](e)
		if !ok {
			return
		}
		b.state.DrawnNumbers = removeLast(b.state.DrawnNumbers, p.Number)
		b.state.Winners = copyStrings(p.Winners)
		b.state.NearWins = copyNearWins(p.NearWins)
		b.history = append(b.history, HistoryEntry{Number: p.Number, Cancelled: true, Timestamp: now})

	case websocket.ActionTicketRegistered:
		p, ok := websocket.As[websocket.TicketRegistered](e)
		if !ok {
			return
		}
		b.state.TotalRegistered = p.TotalRegistered
		if !p.TicketID.Batch {
			b.state.LastTicket = p.TicketID.Barcode
		}

	case websocket.ActionSalesCleared:
		p, ok := websocket.As[websocket.SalesCleared](e)
		if !ok {
			return
		}
		b.state.TotalRegistered = p.TotalRegistered
		b.state.LastTicket = ""

	case websocket.EventDisconnected:
		// Broadcasts missed while offline are replayed by the next sync_status
		b.state.Synced = false

	default:
		return
	}

	b.state.UpdatedAt = now
}

// Snapshot returns a deep copy of the current state
func (b *Board) Snapshot() State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.state
	s.DrawnNumbers = append([]int{}, b.state.DrawnNumbers...)
	s.Winners = copyStrings(b.state.Winners)
	s.NearWins = copyNearWins(b.state.NearWins)
	return s
}

// History returns the draw and cancel events since the last game start or sync
func (b *Board) History() []HistoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]HistoryEntry{}, b.history...)
}

// IsDrawn reports whether n is currently among the drawn numbers
func (b *Board) IsDrawn(n int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, d := range b.state.DrawnNumbers {
		if d == n {
			return true
		}
	}
	return false
}

// removeLast drops the last occurrence of n
func removeLast(nums []int, n int) []int {
	for i := len(nums) - 1; i >= 0; i-- {
		if nums[i] == n {
			return append(nums[:i:i], nums[i+1:]...)
		}
	}
	return nums
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyNearWins(in websocket.NearWins) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = copyStrings(v)
	}
	return out
}
