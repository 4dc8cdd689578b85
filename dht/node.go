package dht

import (
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Node is a single Kademlia participant: a bound UDP socket, a routing
// table keyed by its own NodeID, and a local key/value store. All of its
// I/O is synchronous; nothing here starts a goroutine, and a Node is not
// safe for concurrent use — every exported method must run on the calling
// goroutine's own schedule. Callers that want concurrency must shard by
// node instance or serialize their own access.
type Node struct {
	id          NodeID
	conn        net.PacketConn
	table       *RoutingTable
	store       *Store
	readTimeout time.Duration
}

// New binds a UDP socket at bindAddr (host:port, or ":0" for an
// OS-assigned port) and generates a NodeID by reading 20 bytes from src.
// src is normally crypto/rand.Reader; tests pass a deterministic source.
func New(bindAddr string, src io.Reader) (*Node, error) {
	id, err := RandomNodeID(src)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp", bindAddr)
	if err != nil {
		return nil, &Error{Kind: ErrBind, Cause: err}
	}

	n := &Node{
		id:    id,
		conn:  conn,
		table: newRoutingTable(id),
		store: newStore(),
	}
	logrus.WithFields(logrus.Fields{
		"component": "dht.Node",
		"node_id":   id.String(),
		"addr":      conn.LocalAddr().String(),
	}).Info("node listening")
	return n, nil
}

// ID returns the node's own NodeID.
func (n *Node) ID() NodeID {
	return n.id
}

// LocalAddr returns the address the node's socket is bound to.
func (n *Node) LocalAddr() net.Addr {
	return n.conn.LocalAddr()
}

// Close releases the node's socket.
func (n *Node) Close() error {
	return n.conn.Close()
}

// SetReadTimeout bounds how long RecvOne blocks waiting for a datagram.
// A zero duration disables the deadline (RecvOne blocks indefinitely).
func (n *Node) SetReadTimeout(d time.Duration) error {
	n.readTimeout = d
	if d <= 0 {
		return n.conn.SetReadDeadline(time.Time{})
	}
	return n.conn.SetReadDeadline(time.Now().Add(d))
}

// NoteNode records an observation of a peer in the routing table. It is
// exported so a caller bootstrapping against a well-known peer can seed
// the table without waiting for a first message from that peer.
func (n *Node) NoteNode(id NodeID, addr net.Addr) {
	n.table.noteNode(id, addr)
}

// RecvOne blocks for a single datagram, decodes it, and teaches the
// routing table about its sender before returning. Every message a node
// receives updates the routing table this way, regardless of its kind;
// that is how the table learns about the network at all.
func (n *Node) RecvOne() (net.Addr, RPCMessage, error) {
	if n.readTimeout > 0 {
		if err := n.conn.SetReadDeadline(time.Now().Add(n.readTimeout)); err != nil {
			return nil, RPCMessage{}, &Error{Kind: ErrTransport, Cause: err}
		}
	}

	buf := make([]byte, MaxMessageSize)
	nRead, addr, err := n.conn.ReadFrom(buf)
	if err != nil {
		return nil, RPCMessage{}, &Error{Kind: ErrTransport, Cause: err}
	}

	msg, err := decodeMessage(buf[:nRead])
	if err != nil {
		return addr, RPCMessage{}, &Error{Kind: ErrTransport, Cause: err}
	}

	n.NoteNode(msg.Sender, addr)
	return addr, msg, nil
}

// Send encodes and writes msg to addr.
func (n *Node) Send(addr net.Addr, msg RPCMessage) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if _, err := n.conn.WriteTo(data, addr); err != nil {
		return &Error{Kind: ErrTransport, Cause: err}
	}
	return nil
}

// HandleRequest answers a single request from sender at source, sending
// whatever reply the request kind calls for (Store sends none). It does
// not itself call RecvOne or NoteNode; callers normally invoke HandleRequest
// immediately after a RecvOne that produced a Request message.
func (n *Node) HandleRequest(req RequestKind, sender NodeID, source net.Addr) error {
	switch r := req.(type) {
	case Ping:
		return n.Send(source, RPCMessage{Sender: n.id, Kind: Response{Kind: Pong{}}})

	case FindNode:
		if r.Target == n.id {
			// Degenerate self-query: the requester already has us, so
			// there is nothing useful to reply with.
			return nil
		}
		excluded := map[NodeID]struct{}{n.id: {}}
		entries := n.table.closestK(r.Target, excluded)
		return n.Send(source, RPCMessage{
			Sender: n.id,
			Kind:   Response{Kind: FindNodeResult{Entries: entries}},
		})

	case Store:
		n.store.Insert(r.Key, r.Value)
		logrus.WithFields(logrus.Fields{
			"component": "dht.Node",
			"key":       r.Key.String(),
			"from":      sender.String(),
		}).Debug("stored value on behalf of peer")
		return nil

	case FindValue:
		if value, ok := n.store.Get(r.Key); ok {
			return n.Send(source, RPCMessage{
				Sender: n.id,
				Kind:   Response{Kind: FindValueResult{Response: ValueFound{Key: r.Key, Value: value}}},
			})
		}
		excluded := map[NodeID]struct{}{n.id: {}}
		entries := n.table.closestK(r.Key, excluded)
		return n.Send(source, RPCMessage{
			Sender: n.id,
			Kind:   Response{Kind: FindValueResult{Response: CloserNodes{Entries: entries}}},
		})

	default:
		return &Error{Kind: ErrCodec, Msg: "unhandled request kind"}
	}
}

// TryStore inserts (k, v) into the node's own store and additionally fans
// the value out to the K peers it currently believes are closest to k, on
// a best-effort basis: a send failure to one peer doesn't stop the others.
func (n *Node) TryStore(k NodeID, v []byte) {
	n.store.Insert(k, v)

	excluded := map[NodeID]struct{}{n.id: {}}
	for _, e := range n.table.closestK(k, excluded) {
		msg := RPCMessage{Sender: n.id, Kind: Request{Kind: Store{Key: k, Value: v}}}
		if err := n.Send(e.Addr, msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "dht.Node",
				"key":       k.String(),
				"peer":      e.NodeID.String(),
				"error":     err,
			}).Warn("store fan-out to peer failed")
		}
	}
}
