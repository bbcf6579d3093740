package chunk

import "github.com/govetachun/bufpool/internal/bufpool/bufassert"

// allocateNode locates and reserves a free node at depth d, descending
// from the root always toward the leftmost eligible child (spec.md
// §4.1 allocateNode). Returns the reserved node's id, or ok=false if
// the whole chunk cannot satisfy depth d.
func (c *Chunk) allocateNode(d uint8) (id uint32, ok bool) {
	if c.memoryMap[1] > d {
		return 0, false
	}

	id = 1
	for c.depthMap[id] != d {
		left := id * 2
		if c.memoryMap[left] <= d {
			id = left
		} else {
			id = left + 1
		}
	}

	c.memoryMap[id] = c.unusable
	c.updateParentsAlloc(id)
	return id, true
}

// updateParentsAlloc walks from id to the root, setting each ancestor
// to the min of its two children (unusable if both children are
// unusable).
func (c *Chunk) updateParentsAlloc(id uint32) {
	for id > 1 {
		parent := id / 2
		leftVal := c.memoryMap[parent*2]
		rightVal := c.memoryMap[parent*2+1]
		c.memoryMap[parent] = minU8(leftVal, rightVal)
		id = parent
	}
}

// freeNode restores memoryMap[id] to its fully-free depth, then walks
// to the root collapsing ancestors back to fully-free where both
// children now match the child-layer depth (spec.md §4.1 free).
func (c *Chunk) freeNode(id uint32) {
	c.memoryMap[id] = c.depthMap[id]
	c.updateParentsFree(id)
}

func (c *Chunk) updateParentsFree(id uint32) {
	logChild := depthOf(id) // depth of id itself, i.e. the child layer
	for id > 1 {
		parent := id / 2
		leftVal := c.memoryMap[parent*2]
		rightVal := c.memoryMap[parent*2+1]
		if leftVal == logChild && rightVal == logChild {
			c.memoryMap[parent] = logChild - 1
		} else {
			c.memoryMap[parent] = minU8(leftVal, rightVal)
		}
		id = parent
		logChild--
	}
}

// runLength returns the byte length of the run represented by id:
// chunkSize / 2^depth(id).
func (c *Chunk) runLength(id uint32) int64 {
	return c.ChunkSize() >> depthOf(id)
}

// runOffset returns the byte offset from the chunk's start of the run
// represented by id: (id XOR (1<<depth(id))) * runLength(id).
func (c *Chunk) runOffset(id uint32) int64 {
	d := depthOf(id)
	shiftedID := id ^ (uint32(1) << d)
	return int64(shiftedID) * c.runLength(id)
}

// depthOf returns floor(log2(id)): the depth of node id in the
// complete binary tree (root id=1 has depth 0).
func depthOf(id uint32) uint8 {
	var d uint8
	for id > 1 {
		id >>= 1
		d++
	}
	return d
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

func init() {
	// sanity: depthOf must equal bits.Len(id)-1 for a handful of ids;
	// kept as a guard against a future implementation swap introducing
	// an off-by-one (bufassert, not a test, since this runs once at
	// package init and costs nothing in production).
	bufassert.Assert(depthOf(1) == 0, "depthOf(1) must be 0")
	bufassert.Assert(depthOf(2) == 1, "depthOf(2) must be 1")
	bufassert.Assert(depthOf(3) == 1, "depthOf(3) must be 1")
	bufassert.Assert(depthOf(4) == 2, "depthOf(4) must be 2")
}
