package control

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/Avicted/loopcap/internal/ipc"
)

// StatusFunc reports the current session state for status requests.
type StatusFunc func() ipc.Message

// Serve answers control requests on ln until ln is closed. A stop command
// stops the controller with ReasonControl.
func (c *Controller) Serve(ln net.Listener, status StatusFunc) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}
		go c.handleConn(conn, status)
	}
}

func (c *Controller) handleConn(conn net.Conn, status StatusFunc) {
	defer conn.Close()
	dec := ipc.NewDecoder(conn)
	enc := ipc.NewEncoder(conn)
	for {
		var msg ipc.Message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("control: drop connection: %v", err)
			}
			return
		}
		if err := enc.Encode(c.handle(msg, status)); err != nil {
			return
		}
	}
}

func (c *Controller) handle(msg ipc.Message, status StatusFunc) ipc.Message {
	switch msg.Cmd {
	case ipc.CommandStop:
		if c.Stop(ReasonControl) {
			log.Printf("control: stop requested over control endpoint")
		}
		return ipc.Message{Event: ipc.EventStopping, Reason: string(c.Reason())}
	case ipc.CommandStatus:
		reply := ipc.Message{}
		if status != nil {
			reply = status()
		}
		reply.Event = ipc.EventStatus
		if !c.Running() {
			reply.Reason = string(c.Reason())
		}
		return reply
	case ipc.CommandPing:
		return ipc.Message{Event: ipc.EventPong}
	default:
		return ipc.Message{Event: ipc.EventError, Error: fmt.Sprintf("unknown command %q", msg.Cmd)}
	}
}
