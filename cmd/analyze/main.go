// Command analyze prints quick, human-readable statistics about frame
// captures written by "bingo-client run --capture". Each capture is replayed
// through a board mirror; the report covers draws and cancellations, the
// spread of drawn numbers across the B-I-N-G-O columns, ticket sales and
// the final winners.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/bingo-client/game/board"
	"github.com/wricardo/bingo-client/transport/websocket"
)

// columnWidth is how many numbers each letter of BINGO covers
const columnWidth = websocket.MaxBall / 5

var columns = []string{"B", "I", "N", "G", "O"}

// Analysis is what one capture replays to.
type Analysis struct {
	Frames    int
	Malformed int
	Actions   map[websocket.Action]int
	Cancelled int
	Columns   [5]int
	Final     board.State
}

// Remaining returns how many numbers are still in the drum
func (a Analysis) Remaining() int {
	return websocket.MaxBall - len(a.Final.DrawnNumbers)
}

// column maps a ball to its index in columns
func column(n int) int {
	if n < 1 || n > websocket.MaxBall {
		return -1
	}
	return (n - 1) / columnWidth
}

// analyze replays one capture. Lines that do not parse are counted and skipped.
func analyze(r io.Reader) (Analysis, error) {
	a := Analysis{Actions: make(map[websocket.Action]int)}
	b := board.New()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		a.Frames++

		env, err := websocket.Parse([]byte(line))
		if err != nil {
			a.Malformed++
			continue
		}
		a.Actions[env.Action]++
		if env.Action == websocket.ActionNumberCancelled {
			a.Cancelled++
		}
		b.Apply(env)
	}
	if err := scanner.Err(); err != nil {
		return Analysis{}, fmt.Errorf("failed to read capture: %w", err)
	}

	a.Final = b.Snapshot()
	for _, n := range a.Final.DrawnNumbers {
		if c := column(n); c >= 0 {
			a.Columns[c]++
		}
	}
	return a, nil
}

func main() {
	captures := os.Args[1:]
	if len(captures) == 0 {
		matches, _ := filepath.Glob("captures/*.jsonl")
		captures = matches
	}
	if len(captures) == 0 {
		fmt.Println("Usage: analyze CAPTURE.jsonl...")
		os.Exit(1)
	}

	for _, path := range captures {
		fmt.Printf("\n=== Analyzing %s ===\n", filepath.Base(path))
		analyzeCapture(path, os.Stdout)
	}
}

func analyzeCapture(path string, w io.Writer) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(w, "Error reading file: %v\n", err)
		return
	}
	defer f.Close()

	a, err := analyze(f)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	report(a, w)
}

func report(a Analysis, w io.Writer) {
	fmt.Fprintf(w, "Frames: %d (%d malformed)\n", a.Frames, a.Malformed)
	fmt.Fprintf(w, "Games started: %d\n", a.Final.Games)
	fmt.Fprintf(w, "Drawn: %d, cancelled: %d, remaining: %d\n", len(a.Final.DrawnNumbers), a.Cancelled, a.Remaining())
	if last := a.Final.LastNumber(); last > 0 {
		fmt.Fprintf(w, "Last number: %d\n", last)
	}

	var spread []string
	for i, name := range columns {
		spread = append(spread, fmt.Sprintf("%s=%d", name, a.Columns[i]))
	}
	fmt.Fprintf(w, "Columns: %s\n", strings.Join(spread, " "))

	fmt.Fprintf(w, "Tickets registered: %d\n", a.Final.TotalRegistered)

	if len(a.Final.Winners) > 0 {
		fmt.Fprintf(w, "🏆 Winners: %s\n", strings.Join(a.Final.Winners, ", "))
	} else {
		fmt.Fprintln(w, "No winners yet")
	}
	if near := a.Final.NearWins["1"]; len(near) > 0 {
		fmt.Fprintf(w, "One number away: %d tickets\n", len(near))
	}

	actions := make([]string, 0, len(a.Actions))
	for action := range a.Actions {
		actions = append(actions, string(action))
	}
	sort.Strings(actions)
	for _, action := range actions {
		fmt.Fprintf(w, "  %-18s %d\n", action, a.Actions[websocket.Action(action)])
	}

	if a.Malformed > 0 {
		fmt.Fprintf(w, "⚠️  %d frames could not be parsed\n", a.Malformed)
	}
}
