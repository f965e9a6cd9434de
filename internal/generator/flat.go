package generator

import (
	"context"
	"fmt"

	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world"
	"github.com/GauntletMC/Graphite/internal/world/chunk"
)

// FlatGenerator заполняет каждый чанк одинаковыми горизонтальными слоями от MinY
type FlatGenerator struct {
	dim    chunk.Dimension
	layers []Layer
}

// NewFlatGenerator проверяет, что слои помещаются в измерение
func NewFlatGenerator(dim chunk.Dimension, layers []Layer) (*FlatGenerator, error) {
	total := 0
	for _, l := range layers {
		if !dim.Blocks.Contains(l.Block) {
			return nil, fmt.Errorf("flat: block %d not in %s", l.Block, dim.Blocks.Name)
		}
		total += l.Height
	}
	if total > dim.Height {
		return nil, fmt.Errorf("flat: %d layers exceed height %d", total, dim.Height)
	}
	return &FlatGenerator{dim: dim, layers: layers}, nil
}

// SpawnY первый Y над слоями; одинаков для всех колонок
func (g *FlatGenerator) SpawnY(_, _ int) int {
	y := g.dim.MinY
	for _, l := range g.layers {
		y += l.Height
	}
	return y
}

// LoadChunk генерирует чанк
func (g *FlatGenerator) LoadChunk(ctx context.Context, pos vec.ChunkPos) (*chunk.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := chunk.New(pos, g.dim)
	y := g.dim.MinY
	for _, l := range g.layers {
		for i := 0; i < l.Height; i, y = i+1, y+1 {
			if err := fillLayer(c, y, l.Block); err != nil {
				return nil, fmt.Errorf("flat chunk %s: %w: %w", pos, world.ErrGenerationFailed, err)
			}
		}
	}
	lightUp(c)
	return c, nil
}

func fillLayer(c *chunk.Chunk, y int, v uint32) error {
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			if err := c.SetBlock(x, y, z, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// lightUp освещает все секции небом полностью; расчёта света нет
func lightUp(c *chunk.Chunk) {
	for _, s := range c.Sections() {
		s.FillSkyLight(15)
	}
}
