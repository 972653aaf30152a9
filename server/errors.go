package server

import "errors"

var (
	ErrRoomFull         = errors.New("room is full")
	ErrRoomClosed       = errors.New("room is closed")
	ErrConnClosed       = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message type")
	ErrNotAccepted      = errors.New("message type not accepted by policy")
	ErrJoinAborted      = errors.New("join aborted")
)
