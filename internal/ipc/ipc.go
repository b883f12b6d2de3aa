// Package ipc carries the line-delimited JSON control protocol spoken on the
// optional control endpoint of a running capture.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	CommandStop   = "stop"
	CommandStatus = "status"
	CommandPing   = "ping"

	EventStopping = "stopping"
	EventStatus   = "status"
	EventPong     = "pong"
	EventError    = "error"
)

type Message struct {
	Cmd     string `json:"cmd,omitempty"`
	Event   string `json:"event,omitempty"`
	Session string `json:"session,omitempty"`
	State   string `json:"state,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Bytes   uint64 `json:"bytes,omitempty"`
	Packets uint64 `json:"packets,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewDecoder(r interface{ Read([]byte) (int, error) }) *json.Decoder {
	return json.NewDecoder(r)
}

func NewEncoder(w interface{ Write([]byte) (int, error) }) *json.Encoder {
	return json.NewEncoder(w)
}

// Request dials addr, sends one command and waits for the reply.
// An EventError reply is returned as an error.
func Request(addr string, cmd Message, timeout time.Duration) (Message, error) {
	conn, err := Dial(addr)
	if err != nil {
		return Message{}, fmt.Errorf("dial control endpoint %s: %w", addr, err)
	}
	defer conn.Close()
	return roundTrip(conn, cmd, timeout)
}

func roundTrip(conn net.Conn, cmd Message, timeout time.Duration) (Message, error) {
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	if err := NewEncoder(conn).Encode(cmd); err != nil {
		return Message{}, fmt.Errorf("send %s: %w", cmd.Cmd, err)
	}
	var reply Message
	if err := NewDecoder(conn).Decode(&reply); err != nil {
		return Message{}, fmt.Errorf("read %s reply: %w", cmd.Cmd, err)
	}
	if reply.Event == EventError {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
