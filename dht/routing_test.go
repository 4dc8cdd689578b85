package dht

import (
	"testing"
)

func TestRoutingTableNoteNodeIgnoresSelf(t *testing.T) {
	owner := idWithLastByte(1)
	rt := newRoutingTable(owner)

	rt.noteNode(owner, newMockAddr("self"))

	for i, b := range rt.buckets {
		if b.len() != 0 {
			t.Fatalf("bucket %d len = %d, want 0 after noting self", i, b.len())
		}
	}
}

func TestRoutingTableNoteNodePlacesInExpectedBucket(t *testing.T) {
	owner := NodeID{}
	rt := newRoutingTable(owner)

	peer := idWithLastByte(1) // XOR(owner, peer) has only its lowest bit set -> bucket 0
	rt.noteNode(peer, newMockAddr("peer"))

	want := XOR(owner, peer).BucketIndex()
	if rt.buckets[want].len() != 1 {
		t.Fatalf("bucket %d len = %d, want 1", want, rt.buckets[want].len())
	}
	for i, b := range rt.buckets {
		if i == want {
			continue
		}
		if b.len() != 0 {
			t.Fatalf("bucket %d len = %d, want 0", i, b.len())
		}
	}
}

func TestRoutingTableClosestKBoundedByK(t *testing.T) {
	owner := NodeID{}
	rt := newRoutingTable(owner)

	// All of these land in buckets near the home bucket (0) for
	// target=zero, since their only set bit is in the last byte; the
	// expanding sweep collects them all the same.
	for i := 0; i < K+3; i++ {
		id := idWithLastByte(byte(i + 1))
		rt.noteNode(id, newMockAddr("addr"))
	}

	got := rt.closestK(NodeID{}, nil)
	if len(got) != K {
		t.Fatalf("closestK() len = %d, want %d", len(got), K)
	}
}

func TestRoutingTableClosestKExcludesGivenSet(t *testing.T) {
	owner := NodeID{}
	rt := newRoutingTable(owner)

	a, b := idWithLastByte(1), idWithLastByte(2)
	rt.noteNode(a, newMockAddr("a"))
	rt.noteNode(b, newMockAddr("b"))

	got := rt.closestK(NodeID{}, map[NodeID]struct{}{a: {}})
	for _, e := range got {
		if e.NodeID == a {
			t.Fatalf("closestK() returned excluded id %v", a)
		}
	}
	if len(got) != 1 || got[0].NodeID != b {
		t.Fatalf("closestK() = %v, want only b", got)
	}
}

func TestRoutingTableClosestKSortsByDistanceToTarget(t *testing.T) {
	owner := NodeID{}
	rt := newRoutingTable(owner)

	// near is close to target under XOR; far is not, but both sit in
	// buckets reachable from target's home bucket.
	target := idWithLastByte(0x0f)
	near := idWithLastByte(0x0e)
	far := idWithLastByte(0xf0)

	rt.noteNode(near, newMockAddr("near"))
	rt.noteNode(far, newMockAddr("far"))

	got := rt.closestK(target, nil)
	if len(got) != 2 {
		t.Fatalf("closestK() len = %d, want 2", len(got))
	}
	if got[0].NodeID != near {
		t.Fatalf("closestK()[0] = %v, want near entry %v (sorted by distance to target)", got[0].NodeID, near)
	}
}

func TestRoutingTableClosestKSpreadsToAdjacentBuckets(t *testing.T) {
	owner := NodeID{}
	rt := newRoutingTable(owner)

	// target's home bucket is 159 (highest bit of the first byte). Put a
	// single peer there -- too few to satisfy K alone -- and K more peers
	// one bucket over (bucket 158), forcing closestK to spread beyond the
	// home bucket to reach K results.
	var target NodeID
	target[0] = 0x80
	rt.noteNode(target, newMockAddr("home"))

	for i := 0; i < K; i++ {
		var id NodeID
		id[0] = 0x40
		id[idLength-1] = byte(i + 1)
		rt.noteNode(id, newMockAddr("adj"))
	}

	got := rt.closestK(target, nil)
	if len(got) != K {
		t.Fatalf("closestK() len = %d, want %d (spread across home+adjacent)", len(got), K)
	}
}
