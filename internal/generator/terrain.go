package generator

import (
	"context"
	"fmt"
	"math"

	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
	"github.com/GauntletMC/Graphite/internal/world/palette"
)

// Пороги нормализованной высоты
const (
	DeepWaterMax    = 0.20 // Ниже - глубокое дно (гравий)
	ShallowWaterMax = 0.30 // Ниже - песчаное дно
	MountainStart   = 0.80 // Выше - голый камень
)

// TerrainOptions параметры рельефа
type TerrainOptions struct {
	Seed       int64
	NoiseScale float64 // Масштаб шума высоты
	BiomeScale float64 // Масштаб шума "пустынь"
	BaseHeight int     // Мировой Y при высоте 0
	Amplitude  int     // Разброс высот
	SeaLevel   int
}

// DefaultTerrainOptions параметры по умолчанию для сида
func DefaultTerrainOptions(seed int64) TerrainOptions {
	return TerrainOptions{
		Seed:       seed,
		NoiseScale: 0.01,
		BiomeScale: 0.004,
		BaseHeight: 40,
		Amplitude:  72,
		SeaLevel:   62,
	}
}

// TerrainGenerator рельеф по карте высот из шума Перлина
type TerrainGenerator struct {
	dim    chunk.Dimension
	opts   TerrainOptions
	height *Noise
	biome  *Noise
}

// NewTerrainGenerator создаёт генератор
func NewTerrainGenerator(dim chunk.Dimension, opts TerrainOptions) (*TerrainGenerator, error) {
	def := DefaultTerrainOptions(opts.Seed)
	if opts.NoiseScale <= 0 {
		opts.NoiseScale = def.NoiseScale
	}
	if opts.BiomeScale <= 0 {
		opts.BiomeScale = def.BiomeScale
	}
	if opts.Amplitude <= 0 {
		opts.Amplitude = def.Amplitude
	}
	if opts.BaseHeight == 0 && opts.SeaLevel == 0 {
		opts.BaseHeight, opts.SeaLevel = def.BaseHeight, def.SeaLevel
	}
	if opts.BaseHeight <= dim.MinY || opts.BaseHeight+opts.Amplitude >= dim.MaxY() {
		return nil, fmt.Errorf("terrain: heights %d..%d outside %d..%d",
			opts.BaseHeight, opts.BaseHeight+opts.Amplitude, dim.MinY, dim.MaxY())
	}
	if opts.SeaLevel < dim.MinY || opts.SeaLevel >= dim.MaxY() {
		return nil, fmt.Errorf("terrain: sea level %d outside dimension", opts.SeaLevel)
	}
	return &TerrainGenerator{
		dim:    dim,
		opts:   opts,
		height: NewNoise(opts.Seed, opts.NoiseScale),
		biome:  NewNoise(opts.Seed+42, opts.BiomeScale),
	}, nil
}

// SurfaceY мировой Y верхнего твёрдого блока колонки
func (g *TerrainGenerator) SurfaceY(x, z int) int {
	return g.surface(g.height.At(x, z))
}

// SpawnY первый свободный Y над колонкой, над водой если колонка затоплена
func (g *TerrainGenerator) SpawnY(x, z int) int {
	return max(g.SurfaceY(x, z), g.opts.SeaLevel) + 1
}

func (g *TerrainGenerator) surface(h float64) int {
	return g.opts.BaseHeight + int(math.Floor(h*float64(g.opts.Amplitude)))
}

// LoadChunk генерирует чанк. Результат зависит только от сида и позиции.
func (g *TerrainGenerator) LoadChunk(ctx context.Context, pos vec.ChunkPos) (*chunk.Chunk, error) {
	c := chunk.New(pos, g.dim)
	bx, bz := pos.MinBlock()

	for z := 0; z < 16; z++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < 16; x++ {
			if err := g.column(c, x, z, bx+x, bz+z); err != nil {
				return nil, fmt.Errorf("terrain chunk %s: %w: %w", pos, world.ErrGenerationFailed, err)
			}
		}
	}
	lightUp(c)
	return c, nil
}

// column заполняет одну колонку: бедрок, камень, верхний слой, вода до уровня моря
func (g *TerrainGenerator) column(c *chunk.Chunk, x, z, wx, wz int) error {
	h := g.height.At(wx, wz)
	top := g.surface(h)
	topBlock, fill := g.surfaceBlocks(h, g.biome.At(wx, wz))

	for y := g.dim.MinY; y <= top; y++ {
		var v palette.Value
		switch {
		case y == g.dim.MinY:
			v = Bedrock
		case y == top:
			v = topBlock
		case y > top-4:
			v = fill
		default:
			v = Stone
		}
		if err := c.SetBlock(x, y, z, v); err != nil {
			return err
		}
	}
	for y := top + 1; y <= g.opts.SeaLevel; y++ {
		if err := c.SetBlock(x, y, z, Water); err != nil {
			return err
		}
	}
	return nil
}

func (g *TerrainGenerator) surfaceBlocks(h, biome float64) (top, fill palette.Value) {
	switch {
	case h < DeepWaterMax:
		return Gravel, Gravel
	case h < ShallowWaterMax:
		return Sand, Sand
	case h >= MountainStart:
		return Stone, Stone
	case biome < 0.35:
		return Sand, Sand
	default:
		return GrassBlock, Dirt
	}
}
