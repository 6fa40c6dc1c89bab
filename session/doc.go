// Package session persists the bingo login credential and gates page access
// on it.
//
// The session package implements:
//   - A three-field session record (credential, operator flag, draw id)
//   - Pluggable key-value backends: memory, a JSON file, or a redis hash
//   - Access checks that redirect through an injected Navigator
//   - Auto-login that replays the stored credential on every connection
//
// Core Types:
//
// Store is the flat string key-value backend. Gate reads and writes the
// Record through it and decides redirects. Tracker is the headless Navigator;
// it only remembers the page it was last sent to.
//
// Persisted Fields:
//
//	bingo_key          credential, empty or absent means logged out
//	bingo_is_operator  "true" or "false"
//	bingo_draw_id      draw the session belongs to
//
// Usage:
//
//	store, err := session.NewFileStore("./.bingo")
//	if err != nil {
//		log.Fatal(err)
//	}
//	nav := session.NewTracker(session.MainPage, &logger)
//	gate := session.NewGate(store, nav, &logger)
//
//	session.AutoLogin(ctx, client, gate)
//
//	if ok, _ := gate.CheckAccess(ctx, true); !ok {
//		// nav.Current() is now login.html or index.html
//	}
//
// Access Rules:
//
// CheckAccess is not a pure predicate. With no credential it redirects to
// login.html, and with a credential but no operator flag (when one is
// required) it redirects to index.html. Logout always ends on login.html, even
// when the backend fails to clear.
package session
