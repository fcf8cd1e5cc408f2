// Package router maps channel keys onto log-store endpoints with a
// consistent-hash ring, so every publish, subscribe and kv operation of a
// channel reaches the same endpoint while the endpoint set is unchanged.
package router

import (
	"errors"
	"hash/fnv"
	"sort"
	"strconv"
)

// DefaultReplicas is the number of virtual nodes per endpoint.
const DefaultReplicas = 160

// ErrNoEndpoints is returned when building a ring from an empty set.
var ErrNoEndpoints = errors.New("router: no endpoints")

// Router resolves the endpoint owning a channel key.
type Router interface {
	Route(channelKey string) string
	Endpoints() []string
}

type vnode struct {
	hash     uint64
	endpoint string
}

// Ring is an immutable consistent-hash ring.
type Ring struct {
	endpoints []string
	nodes     []vnode
}

// NewRing builds a ring with DefaultReplicas virtual nodes per endpoint.
func NewRing(endpoints []string) (*Ring, error) {
	return NewRingWithReplicas(endpoints, DefaultReplicas)
}

// NewRingWithReplicas builds a ring with the given virtual node count.
// Duplicate endpoints are ignored.
func NewRingWithReplicas(endpoints []string, replicas int) (*Ring, error) {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	r := &Ring{}
	seen := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		if ep == "" || seen[ep] {
			continue
		}
		seen[ep] = true
		r.endpoints = append(r.endpoints, ep)
	}
	if len(r.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	r.nodes = make([]vnode, 0, len(r.endpoints)*replicas)
	for _, ep := range r.endpoints {
		for i := 0; i < replicas; i++ {
			r.nodes = append(r.nodes, vnode{hash: hashKey(ep + "#" + strconv.Itoa(i)), endpoint: ep})
		}
	}
	sort.Slice(r.nodes, func(i, j int) bool {
		if r.nodes[i].hash == r.nodes[j].hash {
			return r.nodes[i].endpoint < r.nodes[j].endpoint
		}
		return r.nodes[i].hash < r.nodes[j].hash
	})
	return r, nil
}

// Route returns the first virtual node clockwise from the key's hash.
func (r *Ring) Route(channelKey string) string {
	if len(r.endpoints) == 1 {
		return r.endpoints[0]
	}
	h := hashKey(channelKey)
	i := sort.Search(len(r.nodes), func(i int) bool { return r.nodes[i].hash >= h })
	if i == len(r.nodes) {
		i = 0
	}
	return r.nodes[i].endpoint
}

// Endpoints returns the distinct endpoints in configuration order.
func (r *Ring) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

// hashKey is FNV-1a 64 followed by the murmur3 finalizer. Plain FNV keeps
// keys that differ only in their last bytes close together on the ring.
func hashKey(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	x := h.Sum64()
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// ChannelKey is the routing and storage identity of a tenant channel.
func ChannelKey(tenant, channel string) string {
	return tenant + "::" + channel
}
