package engine

import (
	"fmt"
	"sync"

	"github.com/driftlabs/scopesync/commons"
	"github.com/driftlabs/scopesync/scope"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Transport sends outbound messages. Implementations must not block on
// network I/O for longer than it takes to hand the message off.
type Transport interface {
	Send(msg commons.Message) error
}

// Journal persists the speculative suffix and a checkpoint of the graph so
// a restarted client can resume offline work. A nil Journal is valid.
type Journal interface {
	Record(seq int64, fragments []scope.Fragment) error
	Discard(seq int64) error
	Reset() error
	Checkpoint(snap scope.Snapshot) error
}

// Config wires a Coordinator to its collaborators. One coordinator is
// constructed per scope; there is no shared global state.
type Config struct {
	ScopeID   string
	ClientID  uuid.UUID
	Graph     *scope.Graph
	Transport Transport
	Journal   Journal
	Logger    *logrus.Logger

	// OnReject is called, outside the coordinator's lock, for every
	// transaction that is undone for good: server rejections, cascading
	// rejections, cancellations, and re-sync discards.
	OnReject func(Rejection)
}

// Coordinator orchestrates the flow between local mutation, the
// transaction log, and the server. All graph and log mutation is
// serialized through its mutex, so inbound message handling and local
// edits never interleave.
type Coordinator struct {
	mu        sync.Mutex
	scopeID   string
	clientID  uuid.UUID
	graph     *scope.Graph
	log       *TransactionLog
	transport Transport
	journal   Journal
	logger    *logrus.Logger
	onReject  func(Rejection)

	connected bool
	resyncing bool
}

// NewCoordinator returns a coordinator for one scope.
func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		scopeID:   cfg.ScopeID,
		clientID:  cfg.ClientID,
		graph:     cfg.Graph,
		log:       NewTransactionLog(),
		transport: cfg.Transport,
		journal:   cfg.Journal,
		logger:    logger,
		onReject:  cfg.OnReject,
	}
}

// Graph returns the scope's graph.
func (c *Coordinator) Graph() *scope.Graph {
	return c.graph
}

// PendingCount returns the number of transactions awaiting confirmation.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Len()
}

// Mutate builds a local transaction from the fragments, applies it
// optimistically, appends it to the log, and sends it to the server. On
// apply failure the graph is untouched, no log entry is created, and the
// error is returned synchronously.
func (c *Coordinator) Mutate(fragments ...scope.Fragment) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resyncing {
		return 0, ErrResyncing
	}

	tx := scope.NewLocal(fragments...)
	if err := tx.Apply(c.graph); err != nil {
		return 0, err
	}

	seq := c.log.Append(tx)
	if c.journal != nil {
		if err := c.journal.Record(seq, tx.Fragments); err != nil {
			c.logger.Warnf("journal record seq %d failed: %v", seq, err)
		}
	}
	c.checkpoint()
	c.send(c.txMessage(tx))
	return seq, nil
}

// Cancel reverts a pending local transaction before the server has ruled
// on it, cascading exactly like a rejection.
func (c *Coordinator) Cancel(seq int64) error {
	c.mu.Lock()
	if _, ok := c.log.Lookup(seq); !ok {
		c.mu.Unlock()
		return ErrUnknownSequence
	}
	rejections := c.rollback(seq, "cancelled locally")
	c.checkpoint()
	c.mu.Unlock()

	c.report(rejections)
	return nil
}

// Restore re-seeds the log with a transaction persisted by an earlier
// session. The graph is not touched: the journal checkpoint it was
// restored from already contains the transaction's effects. The entry is
// rebased onto the server's snapshot on the next join.
func (c *Coordinator) Restore(seq int64, fragments []scope.Fragment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := scope.NewLocal(fragments...)
	tx.Seq = seq
	return c.log.Restore(tx)
}

// HandleConnect tells the coordinator the transport is up. Pending
// transactions are not re-sent here: every connection starts with the
// server's snapshot, and the rebase onto it re-sends the survivors.
// Sending them before the snapshot too would deliver each one twice. An
// interrupted re-sync re-requests the snapshot.
func (c *Coordinator) HandleConnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = true
	if c.resyncing {
		c.send(commons.Message{Type: commons.SnapshotReqMessage, ScopeID: c.scopeID, ID: c.clientID})
	}
}

// HandleDisconnect tells the coordinator the transport is down. Local
// mutation keeps working; transactions queue in the log until reconnect.
func (c *Coordinator) HandleDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// HandleMessage consumes one inbound server message.
func (c *Coordinator) HandleMessage(msg commons.Message) error {
	switch msg.Type {
	case commons.AckMessage:
		if msg.Ack == nil {
			return fmt.Errorf("ack message without ack body")
		}
		return c.handleAck(*msg.Ack)
	case commons.TxMessage:
		if msg.Transaction == nil {
			return fmt.Errorf("transaction message without transaction body")
		}
		return c.handleRemote(*msg.Transaction)
	case commons.SnapshotMessage:
		if msg.Snapshot == nil {
			return fmt.Errorf("snapshot message without snapshot body")
		}
		return c.handleSnapshot(*msg.Snapshot)
	}
	return nil
}

func (c *Coordinator) handleAck(ack commons.Ack) error {
	c.mu.Lock()

	if c.resyncing {
		// Acks for speculative state we already discarded.
		c.mu.Unlock()
		return nil
	}

	switch ack.Outcome {
	case commons.OutcomeConfirmed:
		tx, err := c.log.Acknowledge(ack.Seq)
		if err != nil {
			c.logger.Errorf("ack for seq %d out of order: %v", ack.Seq, err)
			rejections := c.resync()
			c.mu.Unlock()
			c.report(rejections)
			return ErrProtocolDesync
		}
		if tx == nil {
			// Duplicate delivery.
			c.mu.Unlock()
			return nil
		}
		c.logger.Debugf("seq %d confirmed", ack.Seq)
		if c.journal != nil {
			if err := c.journal.Discard(ack.Seq); err != nil {
				c.logger.Warnf("journal discard seq %d failed: %v", ack.Seq, err)
			}
		}
		c.checkpoint()
		c.mu.Unlock()
		return nil

	case commons.OutcomeRejected:
		if _, ok := c.log.Lookup(ack.Seq); !ok {
			c.logger.Errorf("rejection for unknown seq %d", ack.Seq)
			rejections := c.resync()
			c.mu.Unlock()
			c.report(rejections)
			return ErrProtocolDesync
		}
		c.logger.Warnf("seq %d rejected: %s", ack.Seq, ack.Reason)
		rejections := c.rollback(ack.Seq, ack.Reason)
		c.checkpoint()
		c.mu.Unlock()
		c.report(rejections)
		return nil
	}

	c.mu.Unlock()
	return fmt.Errorf("unknown ack outcome %q", ack.Outcome)
}

// rollback undoes the pending transaction with the given sequence plus
// everything speculatively built on top of it, drops the offender, then
// replays the survivors in their original order. Replays that no longer
// apply become cascading rejections. Called with the lock held; returns
// the rejections to report once the lock is released.
func (c *Coordinator) rollback(seq int64, reason string) []Rejection {
	suffix := c.log.PendingSince(seq)
	for i := len(suffix) - 1; i >= 0; i-- {
		if err := suffix[i].Revert(c.graph); err != nil {
			// Structural conflict inside our own speculative suffix is a
			// bug, not a protocol condition.
			c.logger.Errorf("revert seq %d failed: %v", suffix[i].Seq, err)
			return append(c.resync(), Rejection{Seq: seq, Reason: reason})
		}
	}

	rejections := []Rejection{{Seq: seq, Reason: reason}}
	rejected, _ := c.log.Remove(seq)
	if rejected != nil {
		rejected.State = scope.StateRejected
	}
	if c.journal != nil {
		if err := c.journal.Discard(seq); err != nil {
			c.logger.Warnf("journal discard seq %d failed: %v", seq, err)
		}
	}

	for _, tx := range suffix {
		if tx.Seq == seq {
			continue
		}
		if err := tx.Reapply(c.graph); err != nil {
			c.logger.Warnf("seq %d no longer applies after rollback: %v", tx.Seq, err)
			c.log.Remove(tx.Seq)
			if c.journal != nil {
				_ = c.journal.Discard(tx.Seq)
			}
			rejections = append(rejections, Rejection{
				Seq:       tx.Seq,
				Reason:    fmt.Sprintf("depends on rolled-back state: %v", err),
				Cascading: true,
			})
		}
	}
	return rejections
}

// handleRemote applies an edit made by another client. Pending local
// transactions were built against graph state that did not include it, so
// they are reverted, the remote edit applied, and the local ones rebased
// on top in their original order.
func (c *Coordinator) handleRemote(wire commons.Transaction) error {
	c.mu.Lock()

	if c.resyncing {
		c.mu.Unlock()
		return nil
	}

	pending := c.log.Pending()
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].Revert(c.graph); err != nil {
			c.logger.Errorf("revert seq %d for rebase failed: %v", pending[i].Seq, err)
			rejections := c.resync()
			c.mu.Unlock()
			c.report(rejections)
			return err
		}
	}

	remote := scope.NewRemote(wire.Fragments...)
	if err := remote.Apply(c.graph); err != nil {
		// The server confirmed state we cannot reproduce: desynchronized.
		c.logger.Errorf("remote transaction does not apply: %v", err)
		rejections := c.resync()
		c.mu.Unlock()
		c.report(rejections)
		return err
	}

	var rejections []Rejection
	for _, tx := range pending {
		if err := tx.Reapply(c.graph); err != nil {
			c.logger.Warnf("seq %d no longer applies after remote edit: %v", tx.Seq, err)
			c.log.Remove(tx.Seq)
			if c.journal != nil {
				_ = c.journal.Discard(tx.Seq)
			}
			rejections = append(rejections, Rejection{
				Seq:       tx.Seq,
				Reason:    fmt.Sprintf("conflicts with remote edit: %v", err),
				Cascading: true,
			})
		}
	}

	c.checkpoint()
	c.mu.Unlock()
	c.report(rejections)
	return nil
}

// handleSnapshot installs the authoritative state. During a re-sync the
// speculative suffix was already discarded. Outside one (a snapshot on
// join), offline work is preserved: pending transactions are rebased onto
// the snapshot and re-sent.
func (c *Coordinator) handleSnapshot(snap scope.Snapshot) error {
	c.mu.Lock()

	pending := c.log.Pending()
	if err := c.graph.Restore(snap); err != nil {
		c.mu.Unlock()
		return err
	}
	for _, tx := range pending {
		tx.Detach()
	}

	var rejections []Rejection
	if c.resyncing {
		c.resyncing = false
	} else {
		for _, tx := range pending {
			if err := tx.Reapply(c.graph); err != nil {
				c.log.Remove(tx.Seq)
				if c.journal != nil {
					_ = c.journal.Discard(tx.Seq)
				}
				rejections = append(rejections, Rejection{
					Seq:       tx.Seq,
					Reason:    fmt.Sprintf("does not apply to server state: %v", err),
					Cascading: true,
				})
				continue
			}
			c.send(c.txMessage(tx))
		}
	}

	c.checkpoint()
	c.mu.Unlock()
	c.report(rejections)
	return nil
}

// resync abandons all speculative state and requests the authoritative
// snapshot. Called with the lock held; returns rejections for the dropped
// transactions.
func (c *Coordinator) resync() []Rejection {
	dropped := c.log.Clear()
	var rejections []Rejection
	for _, tx := range dropped {
		tx.State = scope.StateRejected
		rejections = append(rejections, Rejection{Seq: tx.Seq, Reason: "discarded by re-sync", Cascading: true})
	}
	if c.journal != nil {
		if err := c.journal.Reset(); err != nil {
			c.logger.Warnf("journal reset failed: %v", err)
		}
	}
	c.resyncing = true
	c.send(commons.Message{Type: commons.SnapshotReqMessage, ScopeID: c.scopeID, ID: c.clientID})
	return rejections
}

func (c *Coordinator) checkpoint() {
	if c.journal == nil {
		return
	}
	if err := c.journal.Checkpoint(c.graph.Snapshot()); err != nil {
		c.logger.Warnf("journal checkpoint failed: %v", err)
	}
}

func (c *Coordinator) txMessage(tx *scope.Transaction) commons.Message {
	return commons.Message{
		Type:    commons.TxMessage,
		ScopeID: c.scopeID,
		ID:      c.clientID,
		Transaction: &commons.Transaction{
			Seq:       tx.Seq,
			Fragments: tx.Fragments,
		},
	}
}

func (c *Coordinator) send(msg commons.Message) {
	if c.transport == nil || !c.connected {
		return
	}
	if err := c.transport.Send(msg); err != nil {
		c.logger.Warnf("send %s failed: %v", msg.Type, err)
	}
}

func (c *Coordinator) report(rejections []Rejection) {
	if c.onReject == nil {
		return
	}
	for _, r := range rejections {
		c.onReject(r)
	}
}
