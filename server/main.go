package main

import (
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/driftlabs/scopesync/commons"
	"github.com/driftlabs/scopesync/scope"
)

// inbound pairs a client message with the connection it arrived on, so
// acks go back to the origin and broadcasts skip it.
type inbound struct {
	conn *websocket.Conn
	msg  commons.Message
}

// Upgrader instance to upgrade all HTTP connections to a WebSocket.
var upgrader = websocket.Upgrader{}

// Map to store currently active client connections.
var activeClients = make(map[*websocket.Conn]uuid.UUID)
var clientsMu sync.Mutex

// Channel for client messages. handleMsg is the single goroutine that
// mutates the authoritative graph and writes to connections, so message
// handling is serialized in arrival order.
var messageChan = make(chan inbound)

// The authoritative scope.
var scopeID string
var graph *scope.Graph

func main() {
	// Parse flags.
	addr := flag.String("addr", ":9000", "Server's network address")
	scopeFlag := flag.String("scope", "default", "Scope identifier served by this process")
	rootClass := flag.String("root", "root", "Class tag of the scope's root object")
	flag.Parse()

	scopeID = *scopeFlag
	graph = scope.NewGraph(*rootClass)

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleConn)

	// Handle incoming messages.
	go handleMsg()

	// Start the server.
	log.Printf("Starting server for scope %q on %s", scopeID, *addr)
	err := http.ListenAndServe(*addr, mux)
	if err != nil {
		log.Fatal("Error starting server, exiting.", err)
	}
}

// handleConn upgrades incoming HTTP connections, registers the client, and
// reads messages from the connection into messageChan.
func handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection to websocket: %v", err)
		return
	}
	defer conn.Close()

	// Generate a UUID for the client.
	clientsMu.Lock()
	activeClients[conn] = uuid.New()
	clientsMu.Unlock()

	for {
		var msg commons.Message

		// Read message from the connection.
		err := conn.ReadJSON(&msg)
		if err != nil {
			clientsMu.Lock()
			log.Printf("Closing connection with ID: %v", activeClients[conn])
			delete(activeClients, conn)
			clientsMu.Unlock()
			break
		}

		// Stamp the message with the server-assigned client ID.
		clientsMu.Lock()
		msg.ID = activeClients[conn]
		clientsMu.Unlock()

		messageChan <- inbound{conn: conn, msg: msg}
	}
}

// handleMsg listens to the messageChan channel, applies transactions to
// the authoritative graph, and fans out acks, rebroadcasts, and snapshots.
func handleMsg() {
	for {
		in := <-messageChan
		msg := in.msg

		t := time.Now().Format(time.ANSIC)
		if !validScope(msg.ScopeID) {
			color.Red("%s >> %s message for scope %q from %s dropped, serving %q\n", t, msg.Type, msg.ScopeID, msg.ID, scopeID)
			if msg.Type == commons.TxMessage && msg.Transaction != nil {
				reply(in.conn, commons.Message{
					Type:    commons.AckMessage,
					ScopeID: scopeID,
					ID:      msg.ID,
					Ack: &commons.Ack{
						Seq:     msg.Transaction.Seq,
						Outcome: commons.OutcomeRejected,
						Reason:  "unknown scope " + msg.ScopeID,
					},
				})
			}
			continue
		}
		switch msg.Type {
		case commons.JoinMessage:
			color.Green("%s >> %s (%s) joined scope %q\n", t, msg.Username, msg.ID, scopeID)
			reply(in.conn, commons.Message{Type: commons.SessionMessage, ScopeID: scopeID, ID: msg.ID})
			snap := graph.Snapshot()
			reply(in.conn, commons.Message{Type: commons.SnapshotMessage, ScopeID: scopeID, ID: msg.ID, Snapshot: &snap})
			broadcast(in.conn, msg)

		case commons.SnapshotReqMessage:
			color.Yellow("%s >> snapshot requested by %s\n", t, msg.ID)
			snap := graph.Snapshot()
			reply(in.conn, commons.Message{Type: commons.SnapshotMessage, ScopeID: scopeID, ID: msg.ID, Snapshot: &snap})

		case commons.TxMessage:
			if msg.Transaction == nil {
				continue
			}
			handleTransaction(in.conn, msg)

		default:
			color.Red("%s >> unhandled message type %q from %s\n", t, msg.Type, msg.ID)
		}
	}
}

// handleTransaction applies a client transaction to the authoritative
// graph and answers with a confirmed or rejected ack. Confirmed
// transactions are rebroadcast to every other client as remote edits.
func handleTransaction(origin *websocket.Conn, msg commons.Message) {
	t := time.Now().Format(time.ANSIC)
	wire := *msg.Transaction

	tx := scope.NewRemote(wire.Fragments...)
	ack := commons.Ack{Seq: wire.Seq, Outcome: commons.OutcomeConfirmed}
	if err := tx.Apply(graph); err != nil {
		ack.Outcome = commons.OutcomeRejected
		ack.Reason = err.Error()
		color.Red("%s >> seq %d from %s rejected: %v\n", t, wire.Seq, msg.ID, err)
	} else {
		color.Green("%s >> seq %d from %s confirmed (%d fragments)\n", t, wire.Seq, msg.ID, len(wire.Fragments))
	}

	reply(origin, commons.Message{Type: commons.AckMessage, ScopeID: scopeID, ID: msg.ID, Ack: &ack})

	if ack.Outcome == commons.OutcomeConfirmed {
		// Other clients receive the edit without a sequence number; it is
		// not part of their sequence space.
		broadcast(origin, commons.Message{
			Type:        commons.TxMessage,
			ScopeID:     scopeID,
			ID:          msg.ID,
			Transaction: &commons.Transaction{Fragments: wire.Fragments},
		})
	}
}

// validScope reports whether a message is addressed to the scope this
// process serves. An empty scope is accepted for clients that rely on the
// server default.
func validScope(id string) bool {
	return id == "" || id == scopeID
}

// reply writes a message to a single client.
func reply(conn *websocket.Conn, msg commons.Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message to client: %v", err)
		dropClient(conn)
	}
}

// broadcast writes a message to every active client except the origin.
func broadcast(origin *websocket.Conn, msg commons.Message) {
	clientsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(activeClients))
	for client := range activeClients {
		if client != origin {
			conns = append(conns, client)
		}
	}
	clientsMu.Unlock()

	for _, client := range conns {
		if err := client.WriteJSON(msg); err != nil {
			log.Printf("Error sending message to client: %v", err)
			dropClient(client)
		}
	}
}

func dropClient(conn *websocket.Conn) {
	clientsMu.Lock()
	delete(activeClients, conn)
	clientsMu.Unlock()
	conn.Close()
}
