package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/bingo-client/api"
	"github.com/wricardo/bingo-client/game/board"
	"github.com/wricardo/bingo-client/transport/websocket"
)

// Client is a thin MCP client that proxies to the control API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the control API at baseURL
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Bingo Client",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Bingo Client - MCP Interface

This is a thin client over the local control API of a bingo draw client.
The client keeps one websocket connection to the draw server, reconnecting
on its own, and replays the stored credential every time it connects.

AVAILABLE TOOLS:
- connection_status: Is the websocket open, which server, which page
- get_session / save_session / logout: Manage the stored credential
- check_access: Gate check, may redirect to login.html or index.html
- login: Send the stored (or a given) credential to the server
- draw_number: Announce a ball (1-75), operator only on the server side
- send_action: Send any outbound action (start_game, undo_last, register_ticket, register_random, clear_sales, ping)
- board_state: Drawn numbers, winners and near wins as last broadcast
- draw_history: Recent draw and cancel events

NOTE: sends fail with "not connected" while the websocket is down; messages are never queued.`),
	)

	// Register all tools
	c.registerTools()
}

func emptySchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "connection_status",
		Description: "Report whether the websocket to the draw server is open",
		InputSchema: emptySchema(),
	}, c.handleConnectionStatus)

	// Session gate
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Show the stored session (credential masked)",
		InputSchema: emptySchema(),
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "save_session",
		Description: "Store a credential, operator flag and draw id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"key": map[string]interface{}{
					"type":        "string",
					"description": "Login credential",
				},
				"is_operator": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether the credential belongs to an operator",
				},
				"draw_id": map[string]interface{}{
					"type":        "string",
					"description": "Draw the session belongs to",
				},
			},
			Required: []string{"key"},
		},
	}, c.handleSaveSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "logout",
		Description: "Clear the stored session and go to the login page",
		InputSchema: emptySchema(),
	}, c.handleLogout)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "check_access",
		Description: "Check whether the stored session may see the current page; redirects when it may not",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"require_operator": map[string]interface{}{
					"type":        "boolean",
					"description": "Require the operator role",
				},
			},
		},
	}, c.handleCheckAccess)

	// Connection
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "login",
		Description: "Send a login to the draw server, using the stored credential unless one is given",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"key": map[string]interface{}{
					"type":        "string",
					"description": "Credential to use instead of the stored one (optional)",
				},
			},
		},
	}, c.handleLogin)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "draw_number",
		Description: "Announce a drawn ball",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"number": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     websocket.MaxBall,
					"description": "Ball number",
				},
			},
			Required: []string{"number"},
		},
	}, c.handleDrawNumber)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "send_action",
		Description: "Send any outbound action with an optional payload object",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"action": map[string]interface{}{
					"type": "string",
					"enum": []string{
						string(websocket.ActionPing),
						string(websocket.ActionStartGame),
						string(websocket.ActionDrawNumber),
						string(websocket.ActionUndoLast),
						string(websocket.ActionRegisterTicket),
						string(websocket.ActionRegisterRandom),
						string(websocket.ActionClearSales),
					},
					"description": "Action tag",
				},
				"payload": map[string]interface{}{
					"type":        "object",
					"description": "Fields sent next to the action tag (optional)",
				},
			},
			Required: []string{"action"},
		},
	}, c.handleSendAction)

	// Board
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "board_state",
		Description: "Show drawn numbers, winners and near wins",
		InputSchema: emptySchema(),
	}, c.handleBoardState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "draw_history",
		Description: "Show recent draw and cancel events",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Number of most recent events (default 20)",
				},
			},
		},
	}, c.handleDrawHistory)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	return args
}

// Tool handlers

func (c *Client) handleConnectionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status api.StatusResponse
	if err := c.apiCall(ctx, "GET", "/api/status", nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatStatus(status)), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sess api.SessionResponse
	if err := c.apiCall(ctx, "GET", "/api/session", nil, &sess); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSession(sess)), nil
}

func (c *Client) handleSaveSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	key, _ := args["key"].(string)
	isOperator, _ := args["is_operator"].(bool)
	drawID, _ := args["draw_id"].(string)

	if key == "" {
		return mcp.NewToolResultError("key is required"), nil
	}

	var sess api.SessionResponse
	body := api.SaveSessionRequest{Key: key, IsOperator: isOperator, DrawID: drawID}
	if err := c.apiCall(ctx, "PUT", "/api/session", body, &sess); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Session saved\n" + formatSession(sess)), nil
}

func (c *Client) handleLogout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp map[string]string
	if err := c.apiCall(ctx, "DELETE", "/api/session", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Logged out\nPage: %s\n", resp["page"])), nil
}

func (c *Client) handleCheckAccess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requireOperator, _ := arguments(request)["require_operator"].(bool)

	path := "/api/access?" + url.Values{"operator": {strconv.FormatBool(requireOperator)}}.Encode()

	var access api.AccessResponse
	if err := c.apiCall(ctx, "GET", path, nil, &access); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	verdict := "✓ Access granted"
	if !access.Allowed {
		verdict = "✗ Access denied, redirected"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s\nPage: %s\n", verdict, access.Page)), nil
}

func (c *Client) handleLogin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, _ := arguments(request)["key"].(string)

	var body interface{}
	if key != "" {
		body = api.LoginRequest{Key: key}
	}
	if err := c.apiCall(ctx, "POST", "/api/login", body, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Login sent; the server answers with login_response"), nil
}

func (c *Client) handleDrawNumber(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, ok := arguments(request)["number"].(float64)
	if !ok {
		return mcp.NewToolResultError("number is required"), nil
	}
	if n != float64(int(n)) {
		return mcp.NewToolResultError(fmt.Sprintf("number must be an integer, got %v", n)), nil
	}

	if err := c.apiCall(ctx, "POST", "/api/draw", api.DrawRequest{Number: int(n)}, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Number %d sent", int(n))), nil
}

func (c *Client) handleSendAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	action, _ := args["action"].(string)
	if action == "" {
		return mcp.NewToolResultError("action is required"), nil
	}

	var body interface{}
	if payload, ok := args["payload"].(map[string]interface{}); ok && len(payload) > 0 {
		body = payload
	}

	if err := c.apiCall(ctx, "POST", "/api/actions/"+url.PathEscape(action), body, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Action %s sent", action)), nil
}

func (c *Client) handleBoardState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var state board.State
	if err := c.apiCall(ctx, "GET", "/api/board", nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatBoard(state)), nil
}

func (c *Client) handleDrawHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if l, ok := arguments(request)["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	var history []board.HistoryEntry
	path := fmt.Sprintf("/api/board/history?limit=%d", limit)
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatHistory(history)), nil
}

// Formatting

func formatStatus(s api.StatusResponse) string {
	state := "✓ Connected"
	if !s.Connected {
		state = "✗ Disconnected (reconnecting)"
	}
	return fmt.Sprintf("%s\nServer: %s\nPage: %s\n", state, s.URL, s.Page)
}

func formatSession(s api.SessionResponse) string {
	if !s.LoggedIn {
		return "Logged out\n"
	}
	role := "player"
	if s.IsOperator {
		role = "operator"
	}
	return fmt.Sprintf("Logged in as %s\nKey: %s\nDraw: %s\n", role, s.Key, s.DrawID)
}

func formatBoard(s board.State) string {
	var b strings.Builder

	if !s.Synced {
		b.WriteString("⚠ Not synced, showing last known state\n")
	}
	fmt.Fprintf(&b, "Games started: %d\n", s.Games)
	fmt.Fprintf(&b, "Tickets registered: %d\n", s.TotalRegistered)
	if s.LastTicket != "" {
		fmt.Fprintf(&b, "Last ticket: %s\n", s.LastTicket)
	}

	fmt.Fprintf(&b, "Drawn (%d):", len(s.DrawnNumbers))
	for _, n := range s.DrawnNumbers {
		fmt.Fprintf(&b, " %d", n)
	}
	b.WriteString("\n")
	if last := s.LastNumber(); last != 0 {
		fmt.Fprintf(&b, "Last number: %d\n", last)
	}

	if len(s.Winners) > 0 {
		fmt.Fprintf(&b, "🎉 Winners: %s\n", strings.Join(s.Winners, ", "))
	} else {
		b.WriteString("Winners: none\n")
	}

	if len(s.NearWins) > 0 {
		b.WriteString("Near wins:\n")
		keys := make([]string, 0, len(s.NearWins))
		for k := range s.NearWins {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s missing: %s\n", k, strings.Join(s.NearWins[k], ", "))
		}
	}

	return b.String()
}

func formatHistory(history []board.HistoryEntry) string {
	if len(history) == 0 {
		return "No draws yet\n"
	}

	var b strings.Builder
	for i, h := range history {
		verb := "drawn"
		if h.Cancelled {
			verb = "cancelled"
		}
		fmt.Fprintf(&b, "%d. %d %s at %s\n", i+1, h.Number, verb, h.Timestamp.Format(time.TimeOnly))
	}
	return b.String()
}
