package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
)

func TestParseLayers(t *testing.T) {
	layers, err := ParseLayers("minecraft:bedrock, dirt*2 ,grass_block")
	require.NoError(t, err)
	assert.Equal(t, []Layer{{Bedrock, 1}, {Dirt, 2}, {GrassBlock, 1}}, layers)

	for _, bad := range []string{"", "dirt*0", "dirt*x", "diamond_block"} {
		_, err := ParseLayers(bad)
		assert.Error(t, err, bad)
	}
}

func TestFlatGenerator(t *testing.T) {
	layers, err := ParseLayers("bedrock,dirt*2,grass_block")
	require.NoError(t, err)
	g, err := NewFlatGenerator(chunk.Overworld, layers)
	require.NoError(t, err)

	c, err := g.LoadChunk(context.Background(), vec.ChunkPos{X: 3, Z: -1})
	require.NoError(t, err)
	assert.Equal(t, vec.ChunkPos{X: 3, Z: -1}, c.Pos())

	want := map[int]uint32{-64: Bedrock, -63: Dirt, -62: Dirt, -61: GrassBlock, -60: Air}
	for y, v := range want {
		got, err := c.Block(5, y, 9)
		require.NoError(t, err)
		assert.Equal(t, v, got, "y=%d", y)
	}
	assert.Equal(t, -60, c.Height(0, 0))
	assert.Equal(t, -60, g.SpawnY(100, -7))

	s, err := c.Section(0)
	require.NoError(t, err)
	assert.Equal(t, 16*16*4, s.BlockCount())
	assert.EqualValues(t, 15, s.SkyLight(0, 0, 0))
}

func TestFlatGeneratorRejectsTooTall(t *testing.T) {
	_, err := NewFlatGenerator(chunk.Overworld, []Layer{{Stone, chunk.Overworld.Height + 1}})
	assert.Error(t, err)
}

func TestTerrainDeterministic(t *testing.T) {
	ctx := context.Background()
	pos := vec.ChunkPos{X: 12, Z: -7}

	a, err := NewTerrainGenerator(chunk.Overworld, DefaultTerrainOptions(1234))
	require.NoError(t, err)
	b, err := NewTerrainGenerator(chunk.Overworld, DefaultTerrainOptions(1234))
	require.NoError(t, err)

	ca, err := a.LoadChunk(ctx, pos)
	require.NoError(t, err)
	cb, err := b.LoadChunk(ctx, pos)
	require.NoError(t, err)

	da, err := ca.MarshalBinary()
	require.NoError(t, err)
	db, err := cb.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Equal(t, ca.Heightmap(), cb.Heightmap())
}

func TestTerrainColumns(t *testing.T) {
	opts := DefaultTerrainOptions(99)
	g, err := NewTerrainGenerator(chunk.Overworld, opts)
	require.NoError(t, err)

	pos := vec.ChunkPos{X: -3, Z: 4}
	c, err := g.LoadChunk(context.Background(), pos)
	require.NoError(t, err)
	bx, bz := pos.MinBlock()

	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			top := g.SurfaceY(bx+x, bz+z)
			assert.GreaterOrEqual(t, top, opts.BaseHeight)
			assert.LessOrEqual(t, top, opts.BaseHeight+opts.Amplitude)

			v, err := c.Block(x, chunk.Overworld.MinY, z)
			require.NoError(t, err)
			assert.Equal(t, Bedrock, v)

			v, err = c.Block(x, top, z)
			require.NoError(t, err)
			assert.NotEqual(t, Air, v)
			assert.NotEqual(t, Water, v)

			above, err := c.Block(x, top+1, z)
			require.NoError(t, err)
			if top < opts.SeaLevel {
				assert.Equal(t, Water, above)
			} else {
				assert.Equal(t, Air, above)
			}

			spawn, err := c.Block(x, g.SpawnY(bx+x, bz+z), z)
			require.NoError(t, err)
			assert.Equal(t, Air, spawn)
		}
	}
}

func TestTerrainRejectsBadHeights(t *testing.T) {
	opts := DefaultTerrainOptions(1)
	opts.BaseHeight = 300
	_, err := NewTerrainGenerator(chunk.Overworld, opts)
	assert.Error(t, err)
}

func TestTerrainCancelled(t *testing.T) {
	g, err := NewTerrainGenerator(chunk.Overworld, DefaultTerrainOptions(1))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.LoadChunk(ctx, vec.ChunkPos{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeneratorsAreChunkSources(t *testing.T) {
	flat, err := NewFlatGenerator(chunk.Overworld, []Layer{{Stone, 1}})
	require.NoError(t, err)
	terrain, err := NewTerrainGenerator(chunk.Overworld, DefaultTerrainOptions(5))
	require.NoError(t, err)

	var _ world.ChunkSource = flat
	var _ world.ChunkSource = terrain
}

func TestNoiseRange(t *testing.T) {
	n := NewNoise(7, 0.05)
	for x := -200; x < 200; x += 13 {
		for z := -200; z < 200; z += 17 {
			v := n.At(x, z)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	assert.Equal(t, n.At(10, 20), NewNoise(7, 0.05).At(10, 20))
}
