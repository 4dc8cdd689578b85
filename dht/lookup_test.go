package dht

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFindReturnsLocalValueWithoutNetworkIO(t *testing.T) {
	x := newTestNode(t)
	k := HashKey([]byte("foo"))
	x.store.Insert(k, []byte("bar"))

	v, err := x.Find(k)
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), v)
}

func TestFindReturnsNoneWhenFrontierExhausted(t *testing.T) {
	x := newTestNode(t)
	require.NoError(t, x.SetReadTimeout(200*time.Millisecond))

	v, err := x.Find(HashKey([]byte("absent")))
	require.NoError(t, err)
	require.Nil(t, v)

	// Find must restore the read timeout that was in effect before it was
	// called, rather than leaving the deadline cleared.
	require.Equal(t, 200*time.Millisecond, x.readTimeout)
}

// serveForever answers inbound requests on n until its socket is closed (at
// which point RecvOne returns an error and the loop exits). Each server node
// in the test swarm below is owned exclusively by its own goroutine running
// this loop, consistent with a Node never being driven by more than one
// goroutine at a time.
func serveForever(n *Node) {
	for {
		source, msg, err := n.RecvOne()
		if err != nil {
			return
		}
		if req, ok := msg.Kind.(Request); ok {
			_ = n.HandleRequest(req.Kind, msg.Sender, source)
		}
	}
}

func TestFindRemoteAcrossBootstrappedServers(t *testing.T) {
	const numServers = 20

	servers := make([]*Node, numServers)
	for i := range servers {
		servers[i] = newTestNode(t)
	}
	// Cross-introduce servers to each other so closestK on any of them
	// can return useful peers, mirroring a small bootstrapped swarm.
	for i, s := range servers {
		for j, other := range servers {
			if i == j {
				continue
			}
			s.NoteNode(other.ID(), other.LocalAddr())
		}
	}
	for _, s := range servers {
		go serveForever(s)
	}

	publisher := newTestNode(t)
	for _, s := range servers {
		publisher.NoteNode(s.ID(), s.LocalAddr())
	}

	k := HashKey([]byte("foo"))
	publisher.TryStore(k, []byte("bar"))

	seeker, err := New("127.0.0.1:0", rand.Reader)
	require.NoError(t, err)
	defer seeker.Close()
	for _, s := range servers {
		seeker.NoteNode(s.ID(), s.LocalAddr())
	}

	require.NoError(t, seeker.SetReadTimeout(2*time.Second))
	v, err := seeker.Find(k)
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), v)

	absent := HashKey([]byte("absent"))
	v2, err := seeker.Find(absent)
	require.NoError(t, err)
	require.Nil(t, v2)
}
