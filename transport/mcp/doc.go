// Package mcp exposes the bingo client to AI agents over the Model Context
// Protocol.
//
// The mcp package implements:
//   - An MCP server whose tools proxy to the local control API
//   - Text formatting of connection, session and board state for agents
//
// MCP Tools:
//   - connection_status: Websocket state, server URL, current page
//   - get_session, save_session, logout: Stored credential management
//   - check_access: Access check with redirect side effect
//   - login: Send the stored or a given credential
//   - draw_number: Announce a ball
//   - send_action: Send any outbound action with a payload object
//   - board_state, draw_history: Mirrored draw state
//
// Transport:
//
// The server is served over stdio. It holds no state of its own; every tool
// is one HTTP call to the control API, so the same behavior is reachable from
// curl and from an agent.
//
// Usage:
//
//	client := mcp.NewClient("http://127.0.0.1:8081")
//	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
//		log.Fatal(err)
//	}
package mcp
