package dht

import (
	"github.com/sirupsen/logrus"
)

// Find runs an iterative FIND_VALUE lookup for k. If the value is already
// present in the node's own store, it is returned with no network I/O.
// Otherwise Find queries the frontier of nodes believed closest to k,
// follows CloserNodes replies to expand the frontier across further
// rounds, and returns as soon as any queried peer reports the value
// itself. It returns (nil, nil) if the frontier is exhausted without
// anyone producing the value.
//
// While a round is outstanding, Find still answers request datagrams that
// arrive from other peers via HandleRequest, so a node in the middle of
// its own lookup keeps serving the network. Find restores the node's
// previous read deadline before returning on every exit path, including
// error.
//
// Find has two known, deliberate deficiencies carried over from its
// single-threaded design: there is no per-request timeout (an
// unresponsive peer in the frontier stalls the round until some other
// reply unblocks it), and a stale response from an earlier, unrelated
// lookup that happens to carry the same key is indistinguishable from a
// live one and will be accepted.
func (n *Node) Find(k NodeID) ([]byte, error) {
	if v, ok := n.store.Get(k); ok {
		return v, nil
	}

	oldTimeout := n.readTimeout
	defer n.SetReadTimeout(oldTimeout)
	if err := n.SetReadTimeout(0); err != nil {
		return nil, err
	}

	seen := map[NodeID]struct{}{n.id: {}}
	var carryover []Entry

	for {
		frontier := n.table.closestK(k, seen)
		for _, e := range carryover {
			if _, ok := seen[e.NodeID]; !ok {
				frontier = append(frontier, e)
			}
		}
		if len(frontier) == 0 {
			return nil, nil
		}

		for _, e := range frontier {
			seen[e.NodeID] = struct{}{}
			msg := RPCMessage{Sender: n.id, Kind: Request{Kind: FindValue{Key: k}}}
			if err := n.Send(e.Addr, msg); err != nil {
				logrus.WithFields(logrus.Fields{
					"component": "dht.Node",
					"key":       k.String(),
					"peer":      e.NodeID.String(),
					"error":     err,
				}).Warn("find-value send to peer failed")
			}
		}
		carryover = nil

		for {
			source, msg, err := n.RecvOne()
			if err != nil {
				return nil, err
			}

			switch body := msg.Kind.(type) {
			case Request:
				if err := n.HandleRequest(body.Kind, msg.Sender, source); err != nil {
					logrus.WithFields(logrus.Fields{
						"component": "dht.Node",
						"error":     err,
					}).Warn("failed to answer inbound request during lookup")
				}
				continue

			case Response:
				result, ok := body.Kind.(FindValueResult)
				if !ok {
					continue
				}
				switch r := result.Response.(type) {
				case ValueFound:
					if r.Key != k {
						continue
					}
					return r.Value, nil
				case CloserNodes:
					carryover = r.Entries
				}
			}
			break
		}
	}
}
