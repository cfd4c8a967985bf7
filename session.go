package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one live websocket connection. After a successful
// createRoom/joinRoom it is bound to a room code and a persistent
// identity, which survive across connections while the client does not.
type client struct {
	conn     *websocket.Conn
	send     chan any
	roomCode string
	identity string
}

// readPump drives the session: it decodes inbound messages and handles
// each to completion before reading the next. On exit the owning room
// is told about the disconnect and the send channel is closed, which
// stops the write pump.
func (c *client) readPump(reg *registry) {
	defer func() {
		c.dropConnection(reg)
		close(c.send)
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("dropping malformed message")
			continue
		}

		c.dispatch(reg, msg)
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// dispatch routes one inbound message. Game errors go back to the
// sender only; malformed or unknown messages are dropped.
func (c *client) dispatch(reg *registry, msg clientMessage) {
	var err error

	switch msg.Type {
	case "createRoom":
		r := reg.createRoom(msg.Capacity)
		err = r.admit(c, orMintIdentity(msg.Identity), msg.Nickname)

	case "joinRoom":
		var r *room
		r, err = reg.getRoom(msg.RoomCode)
		if err == nil {
			err = r.admit(c, orMintIdentity(msg.Identity), msg.Nickname)
		}

	case "setTarget":
		var r *room
		r, err = reg.getRoom(msg.RoomCode)
		if err == nil {
			err = r.setTarget(c, msg.Target)
		}

	case "submitGuess":
		var r *room
		r, err = reg.getRoom(msg.RoomCode)
		if err == nil {
			err = r.submitGuess(c, msg.Guess)
		}

	case "restartGame":
		var r *room
		r, err = reg.getRoom(msg.RoomCode)
		if err == nil {
			r.restart()
		}

	default:
		log.Debug().Str("type", msg.Type).Msg("dropping unknown message")
		return
	}

	if err != nil {
		unicast(c, errorMessage{Type: "error", Message: err.Error()})
	}
}

// dropConnection marks the owning player offline, if this connection is
// still the one bound to the seat.
func (c *client) dropConnection(reg *registry) {
	if c.roomCode == "" {
		return
	}

	r, err := reg.getRoom(c.roomCode)
	if err != nil {
		return
	}

	r.disconnect(c)
}

// orMintIdentity falls back to a server-minted identity for clients that
// don't supply one. Such clients can't reconnect to their seat, but can
// still play.
func orMintIdentity(identity string) string {
	if identity != "" {
		return identity
	}

	return uuid.New().String()
}
