// Package board keeps a local mirror of the bingo draw.
//
// The server pushes a full sync_status when a connection is accepted and
// incremental broadcasts afterwards (number_drawn, game_update,
// number_cancelled, ticket_registered, sales_cleared, game_started). Board
// folds those into a State that can be read at any time:
//
//	b := board.New()
//	b.Attach(client)
//
//	state := b.Snapshot()
//	fmt.Println(state.LastNumber(), state.Winners)
//
// A disconnect marks the mirror unsynced but keeps the last known numbers
// until the next sync_status replaces them.
package board
