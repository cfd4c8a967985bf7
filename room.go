package main

import (
	mrand "math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type phase string

const (
	phaseWaiting  phase = "waiting"
	phaseSetup    phase = "setup"
	phasePlaying  phase = "playing"
	phaseFinished phase = "finished"
)

// roles are assigned in join order and never reassigned.
var roles = [maxCapacity]string{"A", "B", "C"}

// player is one seat in a room. The seat outlives any single connection;
// conn is nil while the player is offline.
type player struct {
	identity string
	nickname string
	role     string
	target   string
	ready    bool
	online   bool
	conn     *client
}

// room is a single game session. All state behind mu; every handler for
// a room runs to completion under the lock, so handlers never interleave.
type room struct {
	code     string
	capacity int

	mu         sync.Mutex
	phase      phase
	players    map[string]*player
	order      []string // identities in join order, which is also turn order
	turnIndex  int
	history    []guessResultMessage
	createdAt  time.Time
	lastActive time.Time
	rng        *mrand.Rand
}

func newRoom(code string, capacity int, rng *mrand.Rand) *room {
	now := time.Now()

	return &room{
		code:       code,
		capacity:   capacity,
		phase:      phaseWaiting,
		players:    make(map[string]*player),
		createdAt:  now,
		lastActive: now,
		rng:        rng,
	}
}

// admit routes an inbound connection claiming an identity: a known
// identity reconnects to its existing seat, anyone else joins fresh.
func (r *room) admit(c *client, identity, nickname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	if _, ok := r.players[identity]; ok {
		r.reconnectLocked(c, identity)
		return nil
	}

	return r.joinLocked(c, identity, nickname)
}

func (r *room) joinLocked(c *client, identity, nickname string) error {
	if len(r.order) >= r.capacity {
		return errRoomFull
	}

	role := roles[len(r.order)]
	if nickname == "" {
		nickname = "Player " + role
	}

	r.players[identity] = &player{
		identity: identity,
		nickname: nickname,
		role:     role,
		online:   true,
		conn:     c,
	}
	r.order = append(r.order, identity)

	c.roomCode = r.code
	c.identity = identity

	unicast(c, roomJoinedMessage{
		Type:     "roomJoined",
		RoomCode: r.code,
		Role:     role,
		Identity: identity,
		Capacity: r.capacity,
	})

	r.broadcastRosterLocked()

	log.Info().
		Str("room", r.code).
		Str("role", role).
		Str("nickname", nickname).
		Msg("player joined")

	if len(r.order) == r.capacity && r.phase == phaseWaiting {
		r.phase = phaseSetup
		r.broadcast(gamePhaseMessage{Type: "gamePhase", Phase: string(phaseSetup)})
	}

	return nil
}

// reconnectLocked rebinds a known identity to a new connection and
// replays everything the client needs to rebuild its view. Reconnecting
// twice in a row produces the same resend with no further side effects.
func (r *room) reconnectLocked(c *client, identity string) {
	p := r.players[identity]
	p.conn = c
	p.online = true

	c.roomCode = r.code
	c.identity = identity

	unicast(c, roomJoinedMessage{
		Type:     "roomJoined",
		RoomCode: r.code,
		Role:     p.role,
		Identity: identity,
		Capacity: r.capacity,
	})

	if p.target != "" {
		unicast(c, targetSetMessage{Type: "targetSet", Target: p.target})
	}

	for _, entry := range r.history {
		unicast(c, entry)
	}

	r.broadcastRosterLocked()

	if r.phase != phaseWaiting {
		unicast(c, gamePhaseMessage{Type: "gamePhase", Phase: string(r.phase)})
	}
	if r.phase == phasePlaying {
		current := r.players[r.order[r.turnIndex]]
		unicast(c, turnChangeMessage{
			Type:         "turnChange",
			TurnRole:     current.role,
			TurnNickname: current.nickname,
		})
	}

	log.Info().
		Str("room", r.code).
		Str("role", p.role).
		Msg("player reconnected")
}

// setTarget stores a player's secret number during setup. Once every
// player is ready the game starts on a random turn.
func (r *room) setTarget(c *client, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	p, ok := r.players[c.identity]
	if !ok || r.phase != phaseSetup {
		return errInvalidPhase
	}

	if !validDigits(target) {
		return errInvalidInput
	}

	p.target = target
	p.ready = true

	unicast(c, targetSetMessage{Type: "targetSet", Target: target})
	r.broadcastExcept(c, opponentStatusMessage{
		Type:    "opponentStatus",
		Message: "An opponent has submitted their target number",
	})

	for _, identity := range r.order {
		if !r.players[identity].ready {
			return nil
		}
	}

	r.startGameLocked()

	return nil
}

// startGameLocked moves the room into play and picks a random starting
// player.
func (r *room) startGameLocked() {
	r.phase = phasePlaying
	r.turnIndex = r.rng.Intn(r.capacity)

	first := r.players[r.order[r.turnIndex]]

	r.broadcast(gamePhaseMessage{Type: "gamePhase", Phase: string(phasePlaying)})
	r.broadcast(turnChangeMessage{
		Type:         "turnChange",
		TurnRole:     first.role,
		TurnNickname: first.nickname,
	})

	log.Info().
		Str("room", r.code).
		Str("first", first.role).
		Msg("game started")
}

// submitGuess scores a guess against the next player's target. Each
// player always guesses the next seat cyclically: two players ping-pong,
// three players chase A->B->C->A.
func (r *room) submitGuess(c *client, guess string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	p, ok := r.players[c.identity]
	if !ok || r.phase != phasePlaying {
		return errInvalidPhase
	}

	if c.identity != r.order[r.turnIndex] {
		return errWrongTurn
	}

	if !validDigits(guess) {
		return errInvalidInput
	}

	opponent := r.players[r.order[(r.turnIndex+1)%r.capacity]]
	feedback := matchCount(guess, opponent.target)

	entry := guessResultMessage{
		Type:       "guessResult",
		Role:       p.role,
		Nickname:   p.nickname,
		Guess:      guess,
		Feedback:   feedback,
		TargetRole: opponent.role,
	}
	r.history = append(r.history, entry)
	r.broadcast(entry)

	log.Debug().
		Str("room", r.code).
		Str("role", p.role).
		Int("feedback", feedback).
		Msg("guess submitted")

	if feedback == targetLength {
		r.finishLocked(p)
		return nil
	}

	r.turnIndex = (r.turnIndex + 1) % r.capacity
	next := r.players[r.order[r.turnIndex]]
	r.broadcast(turnChangeMessage{
		Type:         "turnChange",
		TurnRole:     next.role,
		TurnNickname: next.nickname,
	})

	return nil
}

// finishLocked ends the game and reveals every target.
func (r *room) finishLocked(winner *player) {
	r.phase = phaseFinished

	targets := make(map[string]string, len(r.order))
	for _, identity := range r.order {
		p := r.players[identity]
		targets[p.role] = p.target
	}

	r.broadcast(gameOverMessage{
		Type:           "gameOver",
		Winner:         winner.role,
		WinnerNickname: winner.nickname,
		Targets:        targets,
	})

	log.Info().
		Str("room", r.code).
		Str("winner", winner.role).
		Msg("game over")
}

// restart returns the room to setup from any phase, wiping targets and
// history but keeping seats, roles, and online state.
func (r *room) restart() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	r.phase = phaseSetup
	r.history = nil
	r.turnIndex = 0

	for _, identity := range r.order {
		p := r.players[identity]
		p.target = ""
		p.ready = false
	}

	r.broadcast(gameResetMessage{Type: "gameReset"})
	r.broadcast(gamePhaseMessage{Type: "gamePhase", Phase: string(phaseSetup)})
	r.broadcastRosterLocked()

	log.Info().Str("room", r.code).Msg("game restarted")
}

// disconnect marks a player offline when their connection drops. Stale
// connections from before a reconnect are ignored, so a rebound player
// is never knocked offline by their old socket closing.
func (r *room) disconnect(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[c.identity]
	if !ok || p.conn != c {
		return
	}

	r.lastActive = time.Now()

	p.conn = nil
	p.online = false

	r.broadcast(playerDisconnectedMessage{Type: "playerDisconnected", Nickname: p.nickname})
	r.broadcastRosterLocked()

	log.Info().
		Str("room", r.code).
		Str("role", p.role).
		Msg("player disconnected")
}

// broadcastRosterLocked pushes the current roster to everyone in the
// room. Targets are never included.
func (r *room) broadcastRosterLocked() {
	players := make([]playerStatus, 0, len(r.order))
	for _, identity := range r.order {
		p := r.players[identity]
		players = append(players, playerStatus{
			Nickname: p.nickname,
			Role:     p.role,
			Ready:    p.ready,
			Online:   p.online,
		})
	}

	r.broadcast(playerUpdateMessage{
		Type:    "playerUpdate",
		Count:   len(r.order),
		Players: players,
	})
}

func (r *room) info() roomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return roomInfo{
		Code:       r.code,
		Phase:      string(r.phase),
		Players:    len(r.order),
		Capacity:   r.capacity,
		CreatedAt:  r.createdAt,
		LastActive: r.lastActive,
	}
}
