package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/bingo-client/api"
	"github.com/wricardo/bingo-client/game/board"
	"github.com/wricardo/bingo-client/session"
	"github.com/wricardo/bingo-client/transport/websocket"
)

// fakeConnection satisfies api.Connection. The API calls it from the test
// server goroutine.
type fakeConnection struct {
	mu        sync.Mutex
	connected bool
	sent      []websocket.Action
	payloads  []any
	logins    []string
}

func (f *fakeConnection) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConnection) URL() string { return "ws://draw.local:3000" }

func (f *fakeConnection) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeConnection) Send(action websocket.Action, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return websocket.ErrNotConnected
	}
	if action.IsLocal() {
		return websocket.ErrLocalAction
	}
	if !action.IsOutbound() {
		return websocket.ErrUnknownAction
	}
	f.sent = append(f.sent, action)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeConnection) Login(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return websocket.ErrNotConnected
	}
	f.logins = append(f.logins, key)
	return nil
}

func (f *fakeConnection) DrawNumber(n int) error {
	if n < 1 || n > websocket.MaxBall {
		return websocket.ErrInvalidNumber
	}
	return f.Send(websocket.ActionDrawNumber, websocket.DrawNumber{Number: n})
}

type testEnv struct {
	client *Client
	conn   *fakeConnection
	gate   *session.Gate
	nav    *session.Tracker
	board  *board.Board
}

// setupTestEnv runs a real control API over an in-memory store
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := &fakeConnection{connected: true}
	nav := session.NewTracker(session.MainPage, nil)
	gate := session.NewGate(session.NewMemoryStore(), nav, nil)
	b := board.New()

	server := httptest.NewServer(api.NewServer(conn, gate, nav, b, nil))
	t.Cleanup(server.Close)

	return &testEnv{
		client: NewClient(server.URL),
		conn:   conn,
		gate:   gate,
		nav:    nav,
		board:  b,
	}
}

func callTool(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8081/"
	client := NewClient(baseURL)

	if client.baseURL != "http://localhost:8081" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "healthy"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var response map[string]interface{}
	if err := client.apiCall(context.Background(), "GET", "/api/health", nil, &response); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Unexpected response: %v", response)
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	if err := client.apiCall(context.Background(), "GET", "/api", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil {
		t.Fatal("Expected error for HTTP 500 response")
	}
	if !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error' in error message, got: %v", err)
	}
}

func TestConnectionStatus(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	result, err := env.client.handleConnectionStatus(ctx, callTool("connection_status", nil))
	if err != nil {
		t.Fatalf("handleConnectionStatus failed: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "✓ Connected") || !strings.Contains(text, "ws://draw.local:3000") {
		t.Errorf("Unexpected status: %s", text)
	}

	env.conn.setConnected(false)
	result, _ = env.client.handleConnectionStatus(ctx, callTool("connection_status", nil))
	if text := resultText(t, result); !strings.Contains(text, "Disconnected") {
		t.Errorf("Expected disconnected status, got: %s", text)
	}
}

func TestSessionTools(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	result, _ := env.client.handleGetSession(ctx, callTool("get_session", nil))
	if text := resultText(t, result); !strings.Contains(text, "Logged out") {
		t.Errorf("Expected logged out session, got: %s", text)
	}

	result, err := env.client.handleSaveSession(ctx, callTool("save_session", map[string]interface{}{
		"key":         "operator-key-9876",
		"is_operator": true,
		"draw_id":     "15",
	}))
	if err != nil {
		t.Fatalf("handleSaveSession failed: %v", err)
	}
	text := resultText(t, result)
	for _, want := range []string{"operator", "****9876", "Draw: 15"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}

	rec, _ := env.gate.Load(ctx)
	if rec.Key != "operator-key-9876" || !rec.IsOperator {
		t.Errorf("Session not stored: %+v", rec)
	}

	result, _ = env.client.handleLogout(ctx, callTool("logout", nil))
	if text := resultText(t, result); !strings.Contains(text, string(session.LoginPage)) {
		t.Errorf("Expected redirect to login page, got: %s", text)
	}
	if rec, _ := env.gate.Load(ctx); rec.LoggedIn() {
		t.Error("Expected session cleared after logout")
	}
}

func TestSaveSessionRequiresKey(t *testing.T) {
	env := setupTestEnv(t)

	result, _ := env.client.handleSaveSession(context.Background(), callTool("save_session", map[string]interface{}{}))
	if !result.IsError {
		t.Error("Expected error result without a key")
	}
}

func TestCheckAccessTool(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.gate.Save(ctx, "player", false, "1")

	result, _ := env.client.handleCheckAccess(ctx, callTool("check_access", map[string]interface{}{
		"require_operator": true,
	}))
	text := resultText(t, result)
	if !strings.Contains(text, "✗ Access denied") || !strings.Contains(text, string(session.MainPage)) {
		t.Errorf("Expected denied access redirecting to main page, got: %s", text)
	}

	result, _ = env.client.handleCheckAccess(ctx, callTool("check_access", nil))
	if text := resultText(t, result); !strings.Contains(text, "✓ Access granted") {
		t.Errorf("Expected access granted, got: %s", text)
	}
}

func TestLoginTool(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	result, _ := env.client.handleLogin(ctx, callTool("login", nil))
	if !result.IsError {
		t.Error("Expected error without a stored credential")
	}

	env.gate.Save(ctx, "stored-key", false, "")
	result, _ = env.client.handleLogin(ctx, callTool("login", nil))
	if result.IsError {
		t.Errorf("Unexpected error: %s", resultText(t, result))
	}

	env.client.handleLogin(ctx, callTool("login", map[string]interface{}{"key": "other"}))

	if len(env.conn.logins) != 2 || env.conn.logins[0] != "stored-key" || env.conn.logins[1] != "other" {
		t.Errorf("Unexpected logins: %v", env.conn.logins)
	}
}

func TestDrawNumberTool(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"number": float64(33)}, false},
		{"missing", map[string]interface{}{}, true},
		{"fraction", map[string]interface{}{"number": 3.5}, true},
		{"out of range", map[string]interface{}{"number": float64(76)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.client.handleDrawNumber(ctx, callTool("draw_number", tt.args))
			if err != nil {
				t.Fatalf("handleDrawNumber failed: %v", err)
			}
			if result.IsError != tt.wantErr {
				t.Errorf("Expected error=%v, got %v: %s", tt.wantErr, result.IsError, resultText(t, result))
			}
		})
	}

	if len(env.conn.sent) != 1 || env.conn.sent[0] != websocket.ActionDrawNumber {
		t.Errorf("Expected exactly one draw sent, got %v", env.conn.sent)
	}
}

func TestSendActionTool(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	result, _ := env.client.handleSendAction(ctx, callTool("send_action", map[string]interface{}{
		"action":  "register_random",
		"payload": map[string]interface{}{"count": float64(5)},
	}))
	if result.IsError {
		t.Fatalf("Unexpected error: %s", resultText(t, result))
	}
	payload, _ := env.conn.payloads[0].(map[string]interface{})
	if payload["count"] != float64(5) {
		t.Errorf("Expected payload forwarded, got %v", env.conn.payloads[0])
	}

	result, _ = env.client.handleSendAction(ctx, callTool("send_action", map[string]interface{}{"action": "login_success"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "local action") {
		t.Errorf("Expected local action error, got: %s", resultText(t, result))
	}

	env.conn.setConnected(false)
	result, _ = env.client.handleSendAction(ctx, callTool("send_action", map[string]interface{}{"action": "start_game"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "not connected") {
		t.Errorf("Expected not connected error, got: %s", resultText(t, result))
	}

	result, _ = env.client.handleSendAction(ctx, callTool("send_action", nil))
	if !result.IsError {
		t.Error("Expected error without an action")
	}
}

func TestBoardTools(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	for _, frame := range []string{
		`{"action":"sync_status","totalRegistered":12,"drawnNumbers":[8,21],"winners":[],"near_wins":{"1":["0004-2"]}}`,
		`{"action":"number_drawn","number":60}`,
		`{"action":"game_update","winners":["0004-2"],"near_wins":{}}`,
	} {
		e, err := websocket.Parse([]byte(frame))
		if err != nil {
			t.Fatal(err)
		}
		env.board.Apply(e)
	}

	result, _ := env.client.handleBoardState(ctx, callTool("board_state", nil))
	text := resultText(t, result)
	for _, want := range []string{"Tickets registered: 12", "Drawn (3): 8 21 60", "Last number: 60", "Winners: 0004-2"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in board, got: %s", want, text)
		}
	}

	result, _ = env.client.handleDrawHistory(ctx, callTool("draw_history", map[string]interface{}{"limit": float64(1)}))
	text = resultText(t, result)
	if !strings.Contains(text, "1. 60 drawn") || strings.Contains(text, "21 drawn") {
		t.Errorf("Expected only the last draw, got: %s", text)
	}
}

func TestFormatBoard(t *testing.T) {
	state := board.State{
		DrawnNumbers: []int{},
		NearWins: map[string][]string{
			"2": {"0009-9"},
			"1": {"0001-1", "0002-2"},
		},
	}

	result := formatBoard(state)

	if !strings.Contains(result, "⚠ Not synced") {
		t.Errorf("Expected unsynced warning, got: %s", result)
	}
	if strings.Index(result, "1 missing") > strings.Index(result, "2 missing") {
		t.Errorf("Expected near wins ordered by distance, got: %s", result)
	}
	if strings.Contains(result, "Last number") {
		t.Errorf("No last number before the first draw, got: %s", result)
	}
}

func TestFormatHistory(t *testing.T) {
	if got := formatHistory(nil); got != "No draws yet\n" {
		t.Errorf("Unexpected empty history: %q", got)
	}

	at := time.Date(2026, 5, 1, 20, 15, 0, 0, time.UTC)
	got := formatHistory([]board.HistoryEntry{
		{Number: 7, Timestamp: at},
		{Number: 7, Cancelled: true, Timestamp: at},
	})
	if !strings.Contains(got, "1. 7 drawn at 20:15:00") || !strings.Contains(got, "2. 7 cancelled") {
		t.Errorf("Unexpected history: %s", got)
	}
}
