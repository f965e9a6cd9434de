package chunk

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world/palette"
)

var (
	// ErrOutOfRange координаты вне чанка или вне высоты мира
	ErrOutOfRange = palette.ErrOutOfRange

	// ErrIllegalTransition недопустимый переход жизненного цикла чанка
	ErrIllegalTransition = errors.New("chunk: illegal status transition")
)

// Dimension вертикальные границы мира и реестры значений
type Dimension struct {
	Name   string           // Идентификатор измерения, например minecraft:overworld
	MinY   int              // Нижняя граница мира, кратна 16
	Height int              // Высота мира в блоках, кратна 16
	Blocks palette.Registry // Реестр состояний блоков
	Biomes palette.Registry // Реестр биомов
}

// Overworld измерение ванильного протокола 763
var Overworld = Dimension{
	Name:   "minecraft:overworld",
	MinY:   -64,
	Height: 384,
	Blocks: palette.VanillaBlockStates,
	Biomes: palette.VanillaBiomes,
}

// Sections количество секций по высоте
func (d Dimension) Sections() int { return d.Height / vec.SectionSize }

// MaxY верхняя граница мира (не включительно)
func (d Dimension) MaxY() int { return d.MinY + d.Height }

// Validate проверяет кратность границ размеру секции
func (d Dimension) Validate() error {
	if d.Height <= 0 || d.Height%vec.SectionSize != 0 || d.MinY%vec.SectionSize != 0 {
		return fmt.Errorf("chunk: invalid dimension min_y=%d height=%d", d.MinY, d.Height)
	}
	return nil
}

// Chunk колонка секций на всю высоту мира
type Chunk struct {
	pos      vec.ChunkPos
	dim      Dimension
	sections []*Section
	status   atomic.Int32

	heightMu  sync.Mutex
	heightmap [16 * 16]int32 // Мировой Y самого высокого непустого блока + 1, MinY если пусто
}

// New создаёт пустой чанк (только воздух) в статусе Unloaded
func New(pos vec.ChunkPos, dim Dimension) *Chunk {
	c := &Chunk{
		pos:      pos,
		dim:      dim,
		sections: make([]*Section, dim.Sections()),
	}
	for i := range c.sections {
		c.sections[i] = NewSection(dim.Blocks, dim.Biomes)
	}
	for i := range c.heightmap {
		c.heightmap[i] = int32(dim.MinY)
	}
	return c
}

// Pos координаты чанка
func (c *Chunk) Pos() vec.ChunkPos { return c.pos }

// Dimension параметры измерения
func (c *Chunk) Dimension() Dimension { return c.dim }

// Sections секции снизу вверх
func (c *Chunk) Sections() []*Section { return c.sections }

// Section возвращает секцию по индексу
func (c *Chunk) Section(i int) (*Section, error) {
	if i < 0 || i >= len(c.sections) {
		return nil, fmt.Errorf("%w: section %d of %d", ErrOutOfRange, i, len(c.sections))
	}
	return c.sections[i], nil
}

// locate переводит мировые координаты в секцию и локальные координаты
func (c *Chunk) locate(x, y, z int) (*Section, int, int, int, error) {
	if int32(x>>4) != c.pos.X || int32(z>>4) != c.pos.Z {
		return nil, 0, 0, 0, fmt.Errorf("%w: block (%d,%d,%d) not in chunk %s", ErrOutOfRange, x, y, z, c.pos)
	}
	if y < c.dim.MinY || y >= c.dim.MaxY() {
		return nil, 0, 0, 0, fmt.Errorf("%w: y=%d outside [%d,%d)", ErrOutOfRange, y, c.dim.MinY, c.dim.MaxY())
	}
	s := c.sections[vec.SectionIndexOf(y, c.dim.MinY)]
	return s, x & 0xF, (y - c.dim.MinY) & 0xF, z & 0xF, nil
}

// Block возвращает блок по мировым координатам
func (c *Chunk) Block(x, y, z int) (palette.Value, error) {
	s, lx, ly, lz, err := c.locate(x, y, z)
	if err != nil {
		return 0, err
	}
	return s.Block(lx, ly, lz)
}

// SetBlock записывает блок по мировым координатам и обновляет карту высот
func (c *Chunk) SetBlock(x, y, z int, v palette.Value) error {
	s, lx, ly, lz, err := c.locate(x, y, z)
	if err != nil {
		return err
	}
	if _, err := s.SetBlock(lx, ly, lz, v); err != nil {
		return err
	}
	c.updateHeight(lx, y, lz, v)
	return nil
}

// Biome возвращает биом по мировым координатам
func (c *Chunk) Biome(x, y, z int) (palette.Value, error) {
	s, lx, ly, lz, err := c.locate(x, y, z)
	if err != nil {
		return 0, err
	}
	return s.Biome(lx, ly, lz)
}

// SetBiome записывает биом по мировым координатам
func (c *Chunk) SetBiome(x, y, z int, v palette.Value) error {
	s, lx, ly, lz, err := c.locate(x, y, z)
	if err != nil {
		return err
	}
	return s.SetBiome(lx, ly, lz, v)
}

// Height мировой Y над самым высоким непустым блоком колонки; MinY, если колонка пуста.
// x и z локальные (0..15).
func (c *Chunk) Height(x, z int) int {
	c.heightMu.Lock()
	defer c.heightMu.Unlock()
	return int(c.heightmap[z<<4|x&0xF])
}

func (c *Chunk) updateHeight(x, y, z int, v palette.Value) {
	c.heightMu.Lock()
	defer c.heightMu.Unlock()

	i := z<<4 | x
	top := c.heightmap[i]
	if v != c.dim.Blocks.Air {
		if int32(y+1) > top {
			c.heightmap[i] = int32(y + 1)
		}
		return
	}
	if int32(y+1) == top {
		c.heightmap[i] = int32(c.scanDown(x, y-1, z))
	}
}

// scanDown ищет самый высокий непустой блок не выше y
func (c *Chunk) scanDown(x, y, z int) int {
	for ; y >= c.dim.MinY; y-- {
		s := c.sections[vec.SectionIndexOf(y, c.dim.MinY)]
		if s.IsEmpty() {
			// Пропускаем пустую секцию целиком
			y = c.dim.MinY + vec.SectionIndexOf(y, c.dim.MinY)*vec.SectionSize
			continue
		}
		v, _ := s.Block(x, (y-c.dim.MinY)&0xF, z)
		if v != c.dim.Blocks.Air {
			return y + 1
		}
	}
	return c.dim.MinY
}

// RecalculateHeightmap пересчитывает карту высот целиком (после генерации или загрузки)
func (c *Chunk) RecalculateHeightmap() {
	c.heightMu.Lock()
	defer c.heightMu.Unlock()
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			c.heightmap[z<<4|x] = int32(c.scanDown(x, c.dim.MaxY()-1, z))
		}
	}
}

// Heightmap копия карты высот в мировых координатах
func (c *Chunk) Heightmap() [16 * 16]int32 {
	c.heightMu.Lock()
	defer c.heightMu.Unlock()
	return c.heightmap
}

// Compact ужимает палитры всех секций перед записью в хранилище
func (c *Chunk) Compact() {
	for _, s := range c.sections {
		s.blocks.Compact()
		s.biomes.Compact()
	}
}
