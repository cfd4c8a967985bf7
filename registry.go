package main

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"
)

const (
	minCapacity = 2
	maxCapacity = 3
)

// registry is the process-wide mapping from room code to room. Rooms are
// never deleted; abandoned rooms live for the remainder of the process.
type registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	rng   *mrand.Rand
}

func newRegistry(rng *mrand.Rand) *registry {
	if rng == nil {
		rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}

	return &registry{
		rooms: make(map[string]*room),
		rng:   rng,
	}
}

// createRoom allocates a room in the waiting phase under a fresh code.
// Capacity is clamped to the supported player counts.
func (reg *registry) createRoom(capacity int) *room {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	if capacity > maxCapacity {
		capacity = maxCapacity
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := reg.newRoomCodeLocked()

	// Each room gets its own generator, seeded under reg.mu; rooms never
	// touch shared rng state, so the room mutex alone covers startGame.
	r := newRoom(code, capacity, mrand.New(mrand.NewSource(reg.rng.Int63())))
	reg.rooms[code] = r

	return r
}

func (reg *registry) getRoom(code string) (*room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[code]
	if !ok {
		return nil, errRoomNotFound
	}

	return r, nil
}

// newRoomCodeLocked generates a crypto-random 6-digit room code and
// ensures it doesn't collide with an active room.
func (reg *registry) newRoomCodeLocked() string {
	for {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		n := binary.BigEndian.Uint32(buf[:]) % 900000
		code := fmt.Sprintf("%06d", 100000+n)

		if _, exists := reg.rooms[code]; !exists {
			return code
		}
	}
}

// roomInfo is a point-in-time summary of one room, for the operator
// room listing.
type roomInfo struct {
	Code       string    `json:"code"`
	Phase      string    `json:"phase"`
	Players    int       `json:"players"`
	Capacity   int       `json:"capacity"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

func (reg *registry) listRooms() []roomInfo {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	infos := make([]roomInfo, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		infos = append(infos, r.info())
	}

	return infos
}
