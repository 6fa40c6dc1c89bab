// Package api provides the local HTTP control surface of the bingo client.
//
// The api package implements:
//   - Connection status and health endpoints
//   - Session gate operations (save, read, logout, access checks)
//   - Sending login, draw and arbitrary outbound actions over the websocket
//   - A read-only view of the mirrored draw board
//
// Endpoints:
//
//   - GET /api/health - Liveness
//   - GET /api/status - Connection state, server URL and current page
//   - GET /api/session - Stored session, credential masked
//   - PUT /api/session - Save {"key", "is_operator", "draw_id"}
//   - DELETE /api/session - Logout, redirects to login.html
//   - GET /api/access?operator=true - Access check, may redirect
//   - POST /api/login - Login with {"key"} or the stored credential
//   - POST /api/draw - Draw {"number"}
//   - POST /api/actions/{action} - Send any outbound action with a JSON object body
//   - GET /api/board - Mirrored draw state
//   - GET /api/board/history?limit=N - Draw and cancel events
//
// Usage:
//
//	server := api.NewServer(client, gate, tracker, board, &logger)
//	http.ListenAndServe("127.0.0.1:8081", server)
//
// Error Handling:
//
// Errors are returned as JSON with an HTTP status code:
//
//	{"error": "websocket: not connected"}
//
// A send while the websocket is down answers 503; an action that is local,
// server-only or unknown answers 400.
package api
