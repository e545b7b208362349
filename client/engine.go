package main

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/driftlabs/scopesync/commons"
	"github.com/driftlabs/scopesync/engine"
)

// wsTransport hands outbound messages to the current websocket connection.
// The connection is swapped under the mutex on reconnect.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) Send(msg commons.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return websocket.ErrCloseSent
	}
	return t.conn.WriteJSON(msg)
}

func (t *wsTransport) set(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

// remoteMsg delivers an inbound server message into the TUI's update loop,
// so coordinator calls are serialized with user input handling.
type remoteMsg commons.Message

// rejectionMsg surfaces a rejected, cancelled, or cascading transaction.
type rejectionMsg engine.Rejection

// connStateMsg reports transport up/down transitions.
type connStateMsg struct {
	up  bool
	err error
}

// readPump reads server messages and forwards them to the TUI program.
// On connection loss it redials with exponential backoff, re-announces the
// client, and resumes reading.
func readPump(p *tea.Program, t *wsTransport, c *engine.Coordinator, flags Flags) {
	for {
		conn, _, err := createConn(flags)
		if err != nil {
			policy := backoff.NewExponentialBackOff()
			policy.MaxElapsedTime = 0
			policy.MaxInterval = 30 * time.Second
			err = backoff.Retry(func() error {
				var dialErr error
				conn, _, dialErr = createConn(flags)
				return dialErr
			}, policy)
			if err != nil {
				p.Send(connStateMsg{up: false, err: err})
				return
			}
		}

		t.set(conn)
		join := commons.Message{Type: commons.JoinMessage, ScopeID: flags.Scope, Username: flags.Name}
		if err := conn.WriteJSON(join); err != nil {
			logger.Errorf("join failed: %v", err)
			conn.Close()
			continue
		}
		c.HandleConnect()
		p.Send(connStateMsg{up: true})

		for {
			var msg commons.Message
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Errorf("websocket error: %v", err)
				}
				break
			}
			logger.Debugf("message received: %s", msg.Type)
			p.Send(remoteMsg(msg))
		}

		t.set(nil)
		c.HandleDisconnect()
		p.Send(connStateMsg{up: false})
		conn.Close()
	}
}
