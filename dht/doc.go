// Package dht implements a Kademlia distributed hash table node: a peer in
// a self-organizing overlay network that supports liveness probing, peer
// discovery, key/value publication, and key/value lookup over UDP.
//
// # Architecture
//
// Peers identify themselves with a fixed-width 160-bit NodeID. The XOR of
// two NodeIDs defines the distance metric under which routing and storage
// decisions are made. Each node maintains a routing table of 160 k-buckets,
// grouping known peers by the position of the most significant differing
// bit between their NodeID and the owner's.
//
// Key components:
//
//   - NodeID / Distance: the 160-bit identifier space and its XOR metric
//   - kBucket: a bounded, recency-ordered list of peers sharing a bucket
//   - RoutingTable: the 160-bucket array and closest-node selection
//   - Store: the local key/value map a node serves FIND_VALUE requests from
//   - Node: the datagram socket, dispatch loop, and RPC handlers
//
// # Creating a node
//
//	node, err := dht.New("127.0.0.1:0", rand.Reader)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
// # Bootstrapping
//
// A freshly created node knows nobody. Bootstrapping means learning about
// at least one peer, either by receiving a message from it or by calling
// NoteNode directly with a known address:
//
//	node.NoteNode(peerID, peerAddr)
//
// Every message a node receives — request or response — teaches its
// routing table about the sender's (NodeID, address). This is the only
// population mechanism; there is no separate discovery protocol.
//
// # Serving requests
//
// A node does not run a background goroutine on its own. Callers drive the
// dispatch loop explicitly:
//
//	for {
//	    addr, msg, err := node.RecvOne()
//	    if err != nil {
//	        log.Println(err)
//	        continue
//	    }
//	    if req, ok := msg.Kind.(dht.Request); ok {
//	        node.HandleRequest(req.Kind, msg.Sender, addr)
//	    }
//	}
//
// # Publishing and looking up values
//
//	node.TryStore(key, []byte("value"))
//	value, err := otherNode.Find(key)
//
// # Thread safety
//
// A Node is not safe for concurrent use. It owns its socket, routing table,
// and store exclusively; every operation runs on the calling goroutine,
// with socket reads and writes as the only suspension points. Callers that
// want concurrency must shard by node instance or serialize their own
// access.
package dht
