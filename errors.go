/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
)

// Game errors are surfaced to the originating connection only, as an
// "error" event carrying the message below. None of them are fatal.
var (
	errRoomNotFound = errors.New("room not found")
	errRoomFull     = errors.New("room is full")
	errInvalidPhase = errors.New("action not allowed in current game phase")
	errInvalidInput = errors.New("value must be exactly 5 digits")
	errWrongTurn    = errors.New("not your turn")
)
