package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type clientMessage struct {
	Type     string `json:"type"`               // "createRoom", "joinRoom", "setTarget", "submitGuess", "restartGame"
	Nickname string `json:"nickname,omitempty"` // createRoom / joinRoom
	Identity string `json:"identity,omitempty"` // createRoom / joinRoom
	Capacity int    `json:"capacity,omitempty"` // createRoom
	RoomCode string `json:"roomCode,omitempty"` // joinRoom / setTarget / submitGuess / restartGame
	Target   string `json:"target,omitempty"`   // setTarget
	Guess    string `json:"guess,omitempty"`    // submitGuess
}

// Sent to a single client after it claims a seat.
type roomJoinedMessage struct {
	Type     string `json:"type"` // "roomJoined"
	RoomCode string `json:"roomCode"`
	Role     string `json:"role"`
	Identity string `json:"identity"`
	Capacity int    `json:"capacity"`
}

type playerStatus struct {
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
	Ready    bool   `json:"ready"`
	Online   bool   `json:"online"`
}

// playerUpdateMessage is the room roster; it never includes targets.
type playerUpdateMessage struct {
	Type    string         `json:"type"` // "playerUpdate"
	Count   int            `json:"count"`
	Players []playerStatus `json:"players"`
}

type gamePhaseMessage struct {
	Type  string `json:"type"` // "gamePhase"
	Phase string `json:"phase"`
}

// Sent only to the player who set the target.
type targetSetMessage struct {
	Type   string `json:"type"` // "targetSet"
	Target string `json:"target"`
}

type opponentStatusMessage struct {
	Type    string `json:"type"` // "opponentStatus"
	Message string `json:"message"`
}

type turnChangeMessage struct {
	Type         string `json:"type"` // "turnChange"
	TurnRole     string `json:"turnRole"`
	TurnNickname string `json:"turnNickname"`
}

// guessResultMessage doubles as the immutable history entry; reconnects
// replay these in original order.
type guessResultMessage struct {
	Type       string `json:"type"` // "guessResult"
	Role       string `json:"role"`
	Nickname   string `json:"nickname"`
	Guess      string `json:"guess"`
	Feedback   int    `json:"feedback"`
	TargetRole string `json:"targetRole"`
}

// gameOverMessage reveals every player's target.
type gameOverMessage struct {
	Type           string            `json:"type"` // "gameOver"
	Winner         string            `json:"winner"`
	WinnerNickname string            `json:"winnerNickname"`
	Targets        map[string]string `json:"targets"`
}

type gameResetMessage struct {
	Type string `json:"type"` // "gameReset"
}

type playerDisconnectedMessage struct {
	Type     string `json:"type"` // "playerDisconnected"
	Nickname string `json:"nickname"`
}

type errorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// unicast queues a message for a single connection. Sends are
// fire-and-forget; a client that can't keep up loses messages rather
// than stalling the room.
func unicast(c *client, msg any) {
	if c == nil {
		return
	}

	select {
	case c.send <- msg:
	default:
		log.Debug().Str("room", c.roomCode).Msg("dropping message for slow client")
	}
}

// broadcast sends to every connected player in the room. Callers hold r.mu.
func (r *room) broadcast(msg any) {
	for _, identity := range r.order {
		unicast(r.players[identity].conn, msg)
	}
}

// broadcastExcept sends to every connected player except the sender.
func (r *room) broadcastExcept(sender *client, msg any) {
	for _, identity := range r.order {
		if c := r.players[identity].conn; c != sender {
			unicast(c, msg)
		}
	}
}

// serveWS upgrades the connection and runs its pumps.
func serveWS(reg *registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("remote", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		c := &client{
			conn: conn,
			send: make(chan any, 32),
		}

		go c.writePump()
		c.readPump(reg)
	}
}

// serveRoomList reports active rooms as JSON, for operators.
func serveRoomList(cfg *Config, reg *registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		infos := reg.listRooms()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(struct {
			Count int        `json:"count"`
			Rooms []roomInfo `json:"rooms"`
		}{
			Count: len(infos),
			Rooms: infos,
		})
	}
}

// qrHandler generates a PNG QR code linking straight into a room, so a
// second player can scan in from a phone.
func qrHandler(reg *registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if _, err := reg.getRoom(code); err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at .../room/:code/qr; the client lives at the root with
		// the room code passed as a query parameter.
		path := strings.TrimSuffix(r.URL.Path, "/room/"+code+"/qr")

		url := scheme + "://" + r.Host + path + "/?room=" + code

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerGuessGame sets up the game routes:
//   - $prefix/ws             → the game websocket
//   - $prefix/rooms          → JSON room listing
//   - $prefix/room/:code/qr  → PNG QR code for joining that room
func registerGuessGame(cfg *Config, reg *registry, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/ws", serveWS(reg))
	mux.GET(cfg.prefix+"/rooms", serveRoomList(cfg, reg))
	mux.GET(cfg.prefix+"/room/:code/qr", qrHandler(reg))
}
