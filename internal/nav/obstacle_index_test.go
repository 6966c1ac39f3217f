package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObstacleIndexContains(t *testing.T) {
	ix := NewObstacleIndex(AABB{Min: Vec3{X: -10, Z: -10}, Max: Vec3{X: 10, Z: 10}}, 4)
	ix.Insert(AABB{Min: Vec3{X: -1, Z: -1}, Max: Vec3{X: 1, Z: 1}})
	ix.Insert(AABB{Min: Vec3{X: 5, Z: -10}, Max: Vec3{X: 6, Z: 10}})
	require.Equal(t, 2, ix.Len())

	tests := []struct {
		name string
		p    Vec3
		want bool
	}{
		{"center box", Vec3{}, true},
		{"edge of box", Vec3{X: 1, Z: 1}, true},
		{"open ground", Vec3{X: -5, Z: 5}, false},
		{"long wall top", Vec3{X: 5.5, Z: -9.9}, true},
		{"long wall bottom", Vec3{X: 5.5, Z: 9.9}, true},
		{"beside wall", Vec3{X: 7, Z: 0}, false},
		{"outside bounds", Vec3{X: 50, Z: 50}, false},
		{"height ignored", Vec3{Y: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ix.Contains(tt.p))
		})
	}
}

func TestObstacleIndexQueryDeduplicates(t *testing.T) {
	ix := NewObstacleIndex(AABB{Min: Vec3{X: 0, Z: 0}, Max: Vec3{X: 16, Z: 16}}, 2)
	big := ix.Insert(AABB{Min: Vec3{X: 1, Z: 1}, Max: Vec3{X: 9, Z: 9}})
	ix.Insert(AABB{Min: Vec3{X: 14, Z: 14}, Max: Vec3{X: 15, Z: 15}})

	got := ix.Query(AABB{Min: Vec3{X: 0, Z: 0}, Max: Vec3{X: 10, Z: 10}})
	assert.Equal(t, []uint32{uint32(big)}, got)
	assert.Equal(t, AABB{Min: Vec3{X: 1, Z: 1}, Max: Vec3{X: 9, Z: 9}}, ix.Box(big))
}

func TestObstacleIndexAsClassifier(t *testing.T) {
	ix := NewObstacleIndex(AABB{Min: Vec3{X: -5, Z: -5}, Max: Vec3{X: 5, Z: 5}}, 2)
	ix.Insert(BoundsOf(NewTransform(Vec3{}), Vec3{X: 0.5, Z: 0.5}))

	g := mustGrid(t, 5, 5, 2.0, ix.BlockedFunc())
	assert.Equal(t, CostImpassable, costAt(t, g, 2, 2))
	assert.Equal(t, CostBaseline, costAt(t, g, 1, 2))
}
