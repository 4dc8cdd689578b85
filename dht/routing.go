package dht

import (
	"net"
	"sort"

	"github.com/sirupsen/logrus"
)

// RoutingTable is the owner-parameterised sequence of 160 k-buckets a Node
// maintains. It is implicitly keyed by the owner's NodeID: a peer p lives
// in bucket XOR(owner, p).BucketIndex().
type RoutingTable struct {
	owner   NodeID
	buckets [bucketCount]*kBucket
}

// newRoutingTable builds an empty routing table for the given owner id.
func newRoutingTable(owner NodeID) *RoutingTable {
	rt := &RoutingTable{owner: owner}
	for i := range rt.buckets {
		rt.buckets[i] = newKBucket()
	}
	return rt
}

// noteNode records an observation of (id, addr) in the appropriate bucket.
// Observing the owner's own id is a no-op: a node never routes through
// itself.
func (rt *RoutingTable) noteNode(id NodeID, addr net.Addr) {
	if id == rt.owner {
		return
	}

	idx := XOR(rt.owner, id).BucketIndex()
	evicted, didEvict := rt.buckets[idx].sawNode(id, addr)
	if didEvict {
		logrus.WithFields(logrus.Fields{
			"component": "dht.RoutingTable",
			"bucket":    idx,
			"evicted":   evicted.NodeID.String(),
		}).Debug("evicted least-recently-seen entry on bucket overflow")
	}
}

// closestK returns up to K entries closest to target under XOR distance,
// excluding any id present in excluded. It starts from the home bucket for
// target and spreads to symmetrically adjacent buckets while under-full,
// then sorts the gathered candidates by distance to target and truncates.
func (rt *RoutingTable) closestK(target NodeID, excluded map[NodeID]struct{}) []Entry {
	home := XOR(rt.owner, target).BucketIndex()

	var gathered []Entry
	gathered = rt.buckets[home].collectInto(gathered, excluded)

	for delta := 1; len(gathered) < K; delta++ {
		lo, hi := home-delta, home+delta
		loInRange := lo >= 0
		hiInRange := hi < bucketCount
		if !loInRange && !hiInRange {
			break
		}
		if loInRange {
			gathered = rt.buckets[lo].collectInto(gathered, excluded)
		}
		if hiInRange {
			gathered = rt.buckets[hi].collectInto(gathered, excluded)
		}
	}

	sort.SliceStable(gathered, func(i, j int) bool {
		di := XOR(gathered[i].NodeID, target)
		dj := XOR(gathered[j].NodeID, target)
		return di.Less(dj)
	})

	if len(gathered) > K {
		gathered = gathered[:K]
	}
	return gathered
}
