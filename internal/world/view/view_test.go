package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GauntletMC/Graphite/internal/vec"
)

func pos(x, z int32) vec.ChunkPos { return vec.ChunkPos{X: x, Z: z} }

func toSet(ps []vec.ChunkPos) map[vec.ChunkPos]struct{} {
	out := make(map[vec.ChunkPos]struct{}, len(ps))
	for _, p := range ps {
		out[p] = struct{}{}
	}
	return out
}

func TestFirstViewLoadsWholeSquare(t *testing.T) {
	res := Diff(nil, View{Center: pos(0, 0), Radius: 2})

	assert.Len(t, res.ToLoad, 25)
	assert.Empty(t, res.ToUnload)
	set := toSet(res.ToLoad)
	assert.Len(t, set, 25, "координаты не повторяются")
	for x := int32(-2); x <= 2; x++ {
		for z := int32(-2); z <= 2; z++ {
			assert.Contains(t, set, pos(x, z))
		}
	}
}

func TestStepEastLoadsAndUnloadsColumns(t *testing.T) {
	prev := View{Center: pos(0, 0), Radius: 2}
	res := Diff(&prev, View{Center: pos(1, 0), Radius: 2})

	assert.ElementsMatch(t, []vec.ChunkPos{pos(3, -2), pos(3, -1), pos(3, 0), pos(3, 1), pos(3, 2)}, res.ToLoad)
	assert.ElementsMatch(t, []vec.ChunkPos{pos(-2, -2), pos(-2, -1), pos(-2, 0), pos(-2, 1), pos(-2, 2)}, res.ToUnload)
}

func TestSameViewIsEmpty(t *testing.T) {
	v := View{Center: pos(7, -3), Radius: 4, Shape: Circle}
	assert.True(t, Diff(&v, v).Empty())
}

func TestTeleportWithRadiusChange(t *testing.T) {
	prev := View{Center: pos(0, 0), Radius: 2}
	next := View{Center: pos(100, 100), Radius: 3}
	res := Diff(&prev, next)

	assert.Len(t, res.ToLoad, 49, "непересекающиеся области пересчитываются целиком")
	assert.Len(t, res.ToUnload, 25)
}

func TestOverlappingChangeOfCenterRadiusAndShape(t *testing.T) {
	prev := View{Center: pos(0, 0), Radius: 3, Shape: Square}
	next := View{Center: pos(1, 1), Radius: 4, Shape: Circle}
	res := Diff(&prev, next)

	load, unload := toSet(res.ToLoad), toSet(res.ToUnload)
	for p := range load {
		assert.True(t, next.Contains(p))
		assert.False(t, prev.Contains(p), "%s из пересечения не загружается повторно", p)
	}
	for p := range unload {
		assert.True(t, prev.Contains(p))
		assert.False(t, next.Contains(p), "%s из пересечения не выгружается", p)
	}

	// prev \ unload + load == next
	after := toSet(prev.Region())
	for p := range unload {
		delete(after, p)
	}
	for p := range load {
		after[p] = struct{}{}
	}
	assert.Equal(t, toSet(next.Region()), after)
}

func TestRadiusShrinkUnloadsRing(t *testing.T) {
	prev := View{Center: pos(0, 0), Radius: 3}
	res := Diff(&prev, View{Center: pos(0, 0), Radius: 2})

	assert.Empty(t, res.ToLoad)
	assert.Len(t, res.ToUnload, 49-25)
	for _, p := range res.ToUnload {
		assert.Equal(t, int32(3), pos(0, 0).ChebyshevDistance(p))
	}
}

func TestCircleShape(t *testing.T) {
	v := View{Center: pos(0, 0), Radius: 2, Shape: Circle}
	assert.True(t, v.Contains(pos(2, 0)))
	assert.True(t, v.Contains(pos(1, 1)))
	assert.False(t, v.Contains(pos(2, 1)))
	assert.False(t, v.Contains(pos(2, 2)))
	assert.Len(t, v.Region(), 13)
}

func TestZeroRadius(t *testing.T) {
	v := View{Center: pos(5, 5)}
	assert.Equal(t, []vec.ChunkPos{pos(5, 5)}, v.Region())
	assert.Empty(t, View{Radius: -1}.Region())
}

func TestSortClosestFirst(t *testing.T) {
	res := Diff(nil, View{Center: pos(10, 10), Radius: 3})
	res.SortClosestFirst(pos(10, 10))

	require.Equal(t, pos(10, 10), res.ToLoad[0])
	for i := 1; i < len(res.ToLoad); i++ {
		assert.LessOrEqual(t,
			pos(10, 10).DistanceSquared(res.ToLoad[i-1]),
			pos(10, 10).DistanceSquared(res.ToLoad[i]))
	}
}

func TestParseShape(t *testing.T) {
	s, err := ParseShape("circle")
	require.NoError(t, err)
	assert.Equal(t, Circle, s)

	s, err = ParseShape("")
	require.NoError(t, err)
	assert.Equal(t, Square, s)

	_, err = ParseShape("hexagon")
	assert.Error(t, err)
}
