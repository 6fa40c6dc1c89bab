// Package websocket provides the reconnecting client transport for the bingo
// draw server.
//
// The websocket package implements:
//   - A single owned connection that is redialed after a fixed delay
//   - Fire-and-forget heartbeat pings while connected
//   - Named-event dispatch of inbound envelopes to ordered listeners
//   - A closed set of actions with typed payloads, validated on parse
//   - Deployment-aware server URL resolution
//
// Message Protocol:
//
// Every frame is a JSON object tagged by an "action" field:
//   - Outgoing: {"action": "login", "key": "abc123"}
//   - Incoming: {"action": "login_response", "status": "ok"}
//
// Unknown actions and malformed frames are logged and dropped. A pong is
// swallowed. A login_response is dispatched under its own name and then as
// login_success or login_error depending on its status.
//
// Lifecycle:
//
//  1. Start dials the server in the background
//  2. On open the client marks itself connected, starts the heartbeat and emits "connected"
//  3. On close (or a failed dial) it emits "disconnected" and arms one redial timer
//  4. Cancelling the context passed to Start stops everything
//
// Usage:
//
//	client := websocket.NewClient(websocket.Options{
//		URL: websocket.ResolveURL(websocket.Endpoint{Mode: websocket.ModeLocal}),
//	})
//	client.On(websocket.EventConnected, func(websocket.Envelope) {
//		client.Login(key)
//	})
//	websocket.Handle(client, websocket.ActionNumberDrawn, func(n websocket.NumberDrawn) {
//		fmt.Println("drawn:", n.Number)
//	})
//	client.Start(ctx)
//
// Concurrency:
//
// Listeners run on the goroutine serving the current connection, so at most
// one envelope is dispatched at a time. Listeners may call Send and On.
package websocket
