package main

import (
	"errors"
	mrand "math/rand"
	"testing"
)

func newTestRoom(t *testing.T, capacity int) *room {
	t.Helper()

	reg := newRegistry(mrand.New(mrand.NewSource(1)))
	return reg.createRoom(capacity)
}

func newTestClient() *client {
	return &client{send: make(chan any, 64)}
}

// drain empties a client's send queue and returns everything it held.
func drain(c *client) []any {
	var out []any
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func mustAdmit(t *testing.T, r *room, c *client, identity, nickname string) {
	t.Helper()

	if err := r.admit(c, identity, nickname); err != nil {
		t.Fatalf("admit(%q) returned error: %v", identity, err)
	}
}

// fillRoom joins capacity players as alice, bob, carol and drains their
// queues, leaving the room in the setup phase.
func fillRoom(t *testing.T, r *room) []*client {
	t.Helper()

	names := []string{"alice", "bob", "carol"}
	clients := make([]*client, 0, r.capacity)

	for i := 0; i < r.capacity; i++ {
		c := newTestClient()
		mustAdmit(t, r, c, "id-"+names[i], names[i])
		clients = append(clients, c)
	}

	for _, c := range clients {
		drain(c)
	}

	return clients
}

// startGame fills the room, sets targets in seat order, and pins the
// starting turn to seat 0 so scenarios are deterministic.
func startGame(t *testing.T, r *room, targets []string) []*client {
	t.Helper()

	clients := fillRoom(t, r)

	for i, c := range clients {
		if err := r.setTarget(c, targets[i]); err != nil {
			t.Fatalf("setTarget(%q) returned error: %v", targets[i], err)
		}
	}

	if r.phase != phasePlaying {
		t.Fatalf("phase after all targets = %q, want %q", r.phase, phasePlaying)
	}

	r.turnIndex = 0
	for _, c := range clients {
		drain(c)
	}

	return clients
}

func TestJoinAssignsRolesInOrder(t *testing.T) {
	r := newTestRoom(t, 3)

	wantRoles := []string{"A", "B", "C"}
	for i, role := range wantRoles {
		c := newTestClient()
		mustAdmit(t, r, c, "id-"+role, "")

		msgs := drain(c)
		if len(msgs) == 0 {
			t.Fatalf("player %d received no messages", i)
		}

		joined, ok := msgs[0].(roomJoinedMessage)
		if !ok {
			t.Fatalf("first message was %T, want roomJoinedMessage", msgs[0])
		}
		if joined.Role != role {
			t.Errorf("player %d role = %q, want %q", i, joined.Role, role)
		}
		if joined.RoomCode != r.code {
			t.Errorf("roomJoined code = %q, want %q", joined.RoomCode, r.code)
		}
		if joined.Capacity != 3 {
			t.Errorf("roomJoined capacity = %d, want 3", joined.Capacity)
		}
	}

	if r.players["id-A"].nickname != "Player A" {
		t.Errorf("empty nickname not defaulted: %q", r.players["id-A"].nickname)
	}
}

func TestJoinRejectsWhenFull(t *testing.T) {
	r := newTestRoom(t, 2)
	fillRoom(t, r)

	err := r.admit(newTestClient(), "id-late", "dave")
	if !errors.Is(err, errRoomFull) {
		t.Fatalf("expected errRoomFull, got %v", err)
	}
	if len(r.order) != 2 {
		t.Fatalf("rejected join changed player count to %d", len(r.order))
	}
}

func TestJoinTransitionsWaitingToSetup(t *testing.T) {
	r := newTestRoom(t, 2)

	c1 := newTestClient()
	mustAdmit(t, r, c1, "id-1", "alice")
	if r.phase != phaseWaiting {
		t.Fatalf("phase after first join = %q, want %q", r.phase, phaseWaiting)
	}
	drain(c1)

	c2 := newTestClient()
	mustAdmit(t, r, c2, "id-2", "bob")
	if r.phase != phaseSetup {
		t.Fatalf("phase after second join = %q, want %q", r.phase, phaseSetup)
	}

	var sawSetup bool
	for _, msg := range drain(c1) {
		if gp, ok := msg.(gamePhaseMessage); ok && gp.Phase == string(phaseSetup) {
			sawSetup = true
		}
	}
	if !sawSetup {
		t.Fatal("existing player never saw the setup phase change")
	}
}

func TestSetTargetOutsideSetupPhase(t *testing.T) {
	r := newTestRoom(t, 2)

	c := newTestClient()
	mustAdmit(t, r, c, "id-1", "alice")

	// Still waiting on a second player.
	if err := r.setTarget(c, "12345"); !errors.Is(err, errInvalidPhase) {
		t.Fatalf("expected errInvalidPhase, got %v", err)
	}
}

func TestSetTargetValidatesInput(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := fillRoom(t, r)

	for _, bad := range []string{"1234", "123456", "12a45", ""} {
		if err := r.setTarget(clients[0], bad); !errors.Is(err, errInvalidInput) {
			t.Errorf("setTarget(%q): expected errInvalidInput, got %v", bad, err)
		}
	}

	if r.players["id-alice"].ready {
		t.Fatal("rejected target still marked player ready")
	}
}

func TestSetTargetNotifiesWithoutLeaking(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := fillRoom(t, r)

	if err := r.setTarget(clients[0], "12345"); err != nil {
		t.Fatalf("setTarget returned error: %v", err)
	}

	var confirmed bool
	for _, msg := range drain(clients[0]) {
		if ts, ok := msg.(targetSetMessage); ok {
			confirmed = true
			if ts.Target != "12345" {
				t.Errorf("targetSet value = %q, want %q", ts.Target, "12345")
			}
		}
	}
	if !confirmed {
		t.Fatal("setter never received targetSet")
	}

	for _, msg := range drain(clients[1]) {
		switch msg.(type) {
		case targetSetMessage:
			t.Fatal("opponent received the target value")
		case opponentStatusMessage:
			// expected
		}
	}
}

func TestAllReadyStartsGame(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := fillRoom(t, r)

	if err := r.setTarget(clients[0], "12345"); err != nil {
		t.Fatalf("setTarget returned error: %v", err)
	}
	if r.phase != phaseSetup {
		t.Fatalf("phase after one target = %q, want %q", r.phase, phaseSetup)
	}

	if err := r.setTarget(clients[1], "67890"); err != nil {
		t.Fatalf("setTarget returned error: %v", err)
	}
	if r.phase != phasePlaying {
		t.Fatalf("phase after all targets = %q, want %q", r.phase, phasePlaying)
	}
	if r.turnIndex < 0 || r.turnIndex >= r.capacity {
		t.Fatalf("starting turn index %d outside [0,%d)", r.turnIndex, r.capacity)
	}

	var sawPlaying, sawTurn bool
	for _, msg := range drain(clients[0]) {
		switch m := msg.(type) {
		case gamePhaseMessage:
			if m.Phase == string(phasePlaying) {
				sawPlaying = true
			}
		case turnChangeMessage:
			sawTurn = true
			if m.TurnRole == "" || m.TurnNickname == "" {
				t.Errorf("turnChange missing fields: %+v", m)
			}
		}
	}
	if !sawPlaying || !sawTurn {
		t.Fatalf("missing start broadcasts: playing=%v turn=%v", sawPlaying, sawTurn)
	}
}

func TestTwoPlayerWin(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := startGame(t, r, []string{"12345", "67890"})

	if err := r.submitGuess(clients[0], "67890"); err != nil {
		t.Fatalf("submitGuess returned error: %v", err)
	}

	if r.phase != phaseFinished {
		t.Fatalf("phase after winning guess = %q, want %q", r.phase, phaseFinished)
	}

	for i, c := range clients {
		var sawResult, sawOver bool
		for _, msg := range drain(c) {
			switch m := msg.(type) {
			case guessResultMessage:
				sawResult = true
				if m.Feedback != 5 {
					t.Errorf("feedback = %d, want 5", m.Feedback)
				}
				if m.Role != "A" || m.TargetRole != "B" {
					t.Errorf("guessResult roles = %q vs %q, want A vs B", m.Role, m.TargetRole)
				}
			case gameOverMessage:
				sawOver = true
				if m.Winner != "A" || m.WinnerNickname != "alice" {
					t.Errorf("winner = %q (%q), want A (alice)", m.Winner, m.WinnerNickname)
				}
				if m.Targets["A"] != "12345" || m.Targets["B"] != "67890" {
					t.Errorf("revealed targets = %v", m.Targets)
				}
			}
		}
		if !sawResult || !sawOver {
			t.Errorf("player %d missing broadcasts: result=%v over=%v", i, sawResult, sawOver)
		}
	}
}

func TestPartialFeedback(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := startGame(t, r, []string{"11111", "13579"})

	if err := r.submitGuess(clients[0], "13000"); err != nil {
		t.Fatalf("submitGuess returned error: %v", err)
	}

	var entry guessResultMessage
	var found bool
	for _, msg := range drain(clients[1]) {
		if m, ok := msg.(guessResultMessage); ok {
			entry, found = m, true
		}
	}
	if !found {
		t.Fatal("no guessResult broadcast")
	}
	if entry.Feedback != 2 {
		t.Fatalf("feedback for %q vs %q = %d, want 2", "13000", "13579", entry.Feedback)
	}
	if r.phase != phasePlaying {
		t.Fatalf("phase after partial guess = %q, want %q", r.phase, phasePlaying)
	}
}

func TestWrongTurnRejected(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := startGame(t, r, []string{"12345", "67890"})

	err := r.submitGuess(clients[1], "12345")
	if !errors.Is(err, errWrongTurn) {
		t.Fatalf("expected errWrongTurn, got %v", err)
	}

	if r.turnIndex != 0 {
		t.Fatalf("rejected guess moved turn index to %d", r.turnIndex)
	}
	if len(r.history) != 0 {
		t.Fatalf("rejected guess appended %d history entries", len(r.history))
	}
	if drained := drain(clients[0]); len(drained) != 0 {
		t.Fatalf("rejected guess broadcast %d messages to the room", len(drained))
	}
}

func TestInvalidGuessRejected(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := startGame(t, r, []string{"12345", "67890"})

	if err := r.submitGuess(clients[0], "123"); !errors.Is(err, errInvalidInput) {
		t.Fatalf("expected errInvalidInput, got %v", err)
	}
	if len(r.history) != 0 {
		t.Fatal("invalid guess reached history")
	}
}

func TestThreePlayerCycle(t *testing.T) {
	r := newTestRoom(t, 3)
	clients := startGame(t, r, []string{"11111", "22222", "33333"})

	// A guesses against B and misses.
	if err := r.submitGuess(clients[0], "99999"); err != nil {
		t.Fatalf("submitGuess returned error: %v", err)
	}

	var first guessResultMessage
	for _, msg := range drain(clients[2]) {
		if m, ok := msg.(guessResultMessage); ok {
			first = m
		}
	}
	if first.Role != "A" || first.TargetRole != "B" {
		t.Fatalf("first guess roles = %q vs %q, want A vs B", first.Role, first.TargetRole)
	}
	if r.turnIndex != 1 {
		t.Fatalf("turn index after A's guess = %d, want 1", r.turnIndex)
	}

	// B guesses against C.
	if err := r.submitGuess(clients[1], "99999"); err != nil {
		t.Fatalf("submitGuess returned error: %v", err)
	}

	var second guessResultMessage
	for _, msg := range drain(clients[0]) {
		if m, ok := msg.(guessResultMessage); ok {
			second = m
		}
	}
	if second.Role != "B" || second.TargetRole != "C" {
		t.Fatalf("second guess roles = %q vs %q, want B vs C", second.Role, second.TargetRole)
	}
	if r.turnIndex != 2 {
		t.Fatalf("turn index after B's guess = %d, want 2", r.turnIndex)
	}

	// C guesses against A, wrapping around.
	if err := r.submitGuess(clients[2], "99999"); err != nil {
		t.Fatalf("submitGuess returned error: %v", err)
	}
	if r.turnIndex != 0 {
		t.Fatalf("turn index after C's guess = %d, want 0", r.turnIndex)
	}
}

func TestRestartResetsFromAnyPhase(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := startGame(t, r, []string{"12345", "67890"})

	if err := r.submitGuess(clients[0], "67890"); err != nil {
		t.Fatalf("submitGuess returned error: %v", err)
	}
	if r.phase != phaseFinished {
		t.Fatalf("phase = %q, want %q", r.phase, phaseFinished)
	}
	for _, c := range clients {
		drain(c)
	}

	r.restart()

	if r.phase != phaseSetup {
		t.Fatalf("phase after restart = %q, want %q", r.phase, phaseSetup)
	}
	if r.turnIndex != 0 {
		t.Fatalf("turn index after restart = %d, want 0", r.turnIndex)
	}
	if len(r.history) != 0 {
		t.Fatalf("history after restart has %d entries", len(r.history))
	}

	for _, identity := range r.order {
		p := r.players[identity]
		if p.target != "" || p.ready {
			t.Errorf("player %s not reset: target=%q ready=%v", p.role, p.target, p.ready)
		}
		if p.role == "" || p.nickname == "" {
			t.Errorf("restart wiped player %s identity fields", identity)
		}
	}

	var sawReset, sawSetup, sawRoster bool
	for _, msg := range drain(clients[0]) {
		switch m := msg.(type) {
		case gameResetMessage:
			sawReset = true
		case gamePhaseMessage:
			if m.Phase == string(phaseSetup) {
				sawSetup = true
			}
		case playerUpdateMessage:
			sawRoster = true
			for _, p := range m.Players {
				if p.Ready {
					t.Errorf("roster after restart marks %s ready", p.Role)
				}
			}
		}
	}
	if !sawReset || !sawSetup || !sawRoster {
		t.Fatalf("missing restart broadcasts: reset=%v setup=%v roster=%v", sawReset, sawSetup, sawRoster)
	}
}

func TestDisconnectMarksOffline(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := startGame(t, r, []string{"12345", "67890"})

	r.disconnect(clients[0])

	p := r.players["id-alice"]
	if p.online || p.conn != nil {
		t.Fatalf("player still online after disconnect: online=%v conn=%v", p.online, p.conn)
	}
	if r.phase != phasePlaying {
		t.Fatalf("disconnect ended the game: phase = %q", r.phase)
	}

	var sawNotice bool
	for _, msg := range drain(clients[1]) {
		if m, ok := msg.(playerDisconnectedMessage); ok {
			sawNotice = true
			if m.Nickname != "alice" {
				t.Errorf("disconnect notice named %q, want alice", m.Nickname)
			}
		}
	}
	if !sawNotice {
		t.Fatal("room never saw the disconnect notice")
	}
}

func TestReconnectReplaysState(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := startGame(t, r, []string{"12345", "67890"})

	// One miss on the record before the disconnect.
	if err := r.submitGuess(clients[0], "11111"); err != nil {
		t.Fatalf("submitGuess returned error: %v", err)
	}
	turnBefore := r.turnIndex

	r.disconnect(clients[0])
	drain(clients[1])

	again := newTestClient()
	mustAdmit(t, r, again, "id-alice", "")

	if len(r.order) != 2 {
		t.Fatalf("reconnect created a player: count = %d", len(r.order))
	}
	p := r.players["id-alice"]
	if p.role != "A" {
		t.Fatalf("reconnect changed role to %q", p.role)
	}
	if !p.online || p.conn != again {
		t.Fatal("reconnect did not rebind the connection")
	}
	if r.turnIndex != turnBefore {
		t.Fatalf("reconnect moved turn index from %d to %d", turnBefore, r.turnIndex)
	}

	msgs := drain(again)

	var sawJoined, sawTarget, sawPhase, sawTurn bool
	var replayed []guessResultMessage
	for _, msg := range msgs {
		switch m := msg.(type) {
		case roomJoinedMessage:
			sawJoined = true
			if m.Role != "A" {
				t.Errorf("resent role = %q, want A", m.Role)
			}
		case targetSetMessage:
			sawTarget = true
			if m.Target != "12345" {
				t.Errorf("resent target = %q, want 12345", m.Target)
			}
		case gamePhaseMessage:
			if m.Phase == string(phasePlaying) {
				sawPhase = true
			}
		case turnChangeMessage:
			sawTurn = true
		case guessResultMessage:
			replayed = append(replayed, m)
		}
	}

	if !sawJoined || !sawTarget || !sawPhase || !sawTurn {
		t.Fatalf("incomplete replay: joined=%v target=%v phase=%v turn=%v",
			sawJoined, sawTarget, sawPhase, sawTurn)
	}
	if len(replayed) != 1 || replayed[0].Guess != "11111" {
		t.Fatalf("history replay = %+v, want the single recorded guess", replayed)
	}
}

func TestReconnectIsIdempotent(t *testing.T) {
	r := newTestRoom(t, 2)
	fillRoom(t, r)

	first := newTestClient()
	mustAdmit(t, r, first, "id-alice", "")
	second := newTestClient()
	mustAdmit(t, r, second, "id-alice", "")

	if len(r.order) != 2 {
		t.Fatalf("repeated reconnects created players: count = %d", len(r.order))
	}
	if r.players["id-alice"].conn != second {
		t.Fatal("latest connection not bound to the seat")
	}
}

func TestStaleDisconnectIgnoredAfterReconnect(t *testing.T) {
	r := newTestRoom(t, 2)
	clients := fillRoom(t, r)

	replacement := newTestClient()
	mustAdmit(t, r, replacement, "id-alice", "")

	// The original socket finally times out.
	r.disconnect(clients[0])

	p := r.players["id-alice"]
	if !p.online || p.conn != replacement {
		t.Fatal("stale disconnect knocked a reconnected player offline")
	}
}
