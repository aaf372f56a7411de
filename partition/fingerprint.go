package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Fingerprint returns a hash of the grouping that ignores handles, group order
// and member order. Two partitions holding the same elements in the same
// groups have the same fingerprint; estimator values are not hashed.
//
// Elements are hashed through their fmt %v representation.
func (p *Partition[E]) Fingerprint() uint64 {
	var sum uint64
	var buf [8]byte

	for _, gr := range p.groups {
		var members uint64
		for _, e := range gr.members {
			members += xxh3.HashString(fmt.Sprint(e))
		}
		// Rehash so that group boundaries matter, not only the element set.
		binary.LittleEndian.PutUint64(buf[:], members)
		sum += xxh3.Hash(buf[:])
	}

	binary.LittleEndian.PutUint64(buf[:], sum)

	return xxh3.HashSeed(buf[:], uint64(len(p.groups)))
}
