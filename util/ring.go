package util

import (
	"fmt"

	"github.com/buraksezer/consistent"
	"github.com/spaolacci/murmur3"
)

type hasher struct{}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type member string

func (m member) String() string {
	return string(m)
}

// Ring maps string keys onto a fixed number of slots with consistent hashing.
type Ring struct {
	hring *consistent.Consistent
	slots map[string]int
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	cfg := consistent.Config{
		PartitionCount:    271,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	}
	members := make([]consistent.Member, 0, size)
	slots := make(map[string]int, size)
	for i := 0; i < size; i++ {
		name := fmt.Sprintf("slot-%d", i)
		members = append(members, member(name))
		slots[name] = i
	}
	return &Ring{
		hring: consistent.New(members, cfg),
		slots: slots,
	}
}

func (r *Ring) Locate(key string) int {
	m := r.hring.LocateKey([]byte(key))
	return r.slots[m.String()]
}

func (r *Ring) Size() int {
	return len(r.slots)
}
