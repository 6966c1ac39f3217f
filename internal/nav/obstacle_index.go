package nav

import "math"

// ObstacleIndex is a broad-phase bucket grid of static boxes. It answers
// "is this world position inside any box" in O(1) average time and serves
// as the BlockedFunc for NewGrid.
//
// Boxes are stored once in a flat slice; buckets hold indices into it, not
// pointers. Memory layout: buckets[row*cols+col].
type ObstacleIndex struct {
	origin      Vec3 // world X/Z of bucket (0,0)'s corner
	bucketSize  float64
	invBucket   float64
	cols, rows  int
	boxes       []AABB
	buckets     [][]uint32
	scratchSeen []uint32
}

// NewObstacleIndex covers bounds with square buckets of bucketSize.
// bucketSize should be around the typical obstacle size.
func NewObstacleIndex(bounds AABB, bucketSize float64) *ObstacleIndex {
	if !(bucketSize > 0) {
		bucketSize = 1
	}
	cols := int(math.Ceil((bounds.Max.X - bounds.Min.X) / bucketSize))
	rows := int(math.Ceil((bounds.Max.Z - bounds.Min.Z) / bucketSize))

	// Ensure at least 1x1
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return &ObstacleIndex{
		origin:     bounds.Min,
		bucketSize: bucketSize,
		invBucket:  1.0 / bucketSize,
		cols:       cols,
		rows:       rows,
		buckets:    make([][]uint32, cols*rows),
	}
}

// Insert adds a box and returns its index.
func (ix *ObstacleIndex) Insert(box AABB) int {
	id := uint32(len(ix.boxes))
	ix.boxes = append(ix.boxes, box)

	minCol, minRow := ix.bucketOf(box.Min)
	maxCol, maxRow := ix.bucketOf(box.Max)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			b := row*ix.cols + col
			ix.buckets[b] = append(ix.buckets[b], id)
		}
	}
	return int(id)
}

// Len returns the number of boxes.
func (ix *ObstacleIndex) Len() int { return len(ix.boxes) }

// Contains reports whether p lies inside any stored box (X/Z only).
// Positions outside the indexed bounds are checked against the nearest
// edge bucket, so boxes spilling past the bounds still match.
func (ix *ObstacleIndex) Contains(p Vec3) bool {
	col, row := ix.bucketOf(p)
	for _, id := range ix.buckets[row*ix.cols+col] {
		if ix.boxes[id].ContainsXZ(p) {
			return true
		}
	}
	return false
}

// Query returns indices of boxes overlapping area. The returned slice is
// reused on the next call.
func (ix *ObstacleIndex) Query(area AABB) []uint32 {
	ix.scratchSeen = ix.scratchSeen[:0]
	minCol, minRow := ix.bucketOf(area.Min)
	maxCol, maxRow := ix.bucketOf(area.Max)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, id := range ix.buckets[row*ix.cols+col] {
				if !ix.boxes[id].OverlapsXZ(area) || containsID(ix.scratchSeen, id) {
					continue
				}
				ix.scratchSeen = append(ix.scratchSeen, id)
			}
		}
	}
	return ix.scratchSeen
}

// Box returns the stored box at i.
func (ix *ObstacleIndex) Box(i int) AABB { return ix.boxes[i] }

// BlockedFunc adapts the index to NewGrid's classifier.
func (ix *ObstacleIndex) BlockedFunc() BlockedFunc { return ix.Contains }

func (ix *ObstacleIndex) bucketOf(p Vec3) (col, row int) {
	col = int(math.Floor((p.X - ix.origin.X) * ix.invBucket))
	row = int(math.Floor((p.Z - ix.origin.Z) * ix.invBucket))

	// Clamp to bucket bounds
	col = max(0, min(col, ix.cols-1))
	row = max(0, min(row, ix.rows-1))
	return col, row
}

func containsID(ids []uint32, id uint32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
