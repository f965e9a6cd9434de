package chunk

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/GauntletMC/Graphite/internal/world/palette"
)

// Section 16x16x16 блоков и 4x4x4 биомов
type Section struct {
	blocks     *palette.Container
	biomes     *palette.Container
	air        palette.Value
	blockCount atomic.Int32 // Количество блоков, отличных от воздуха

	lightMu    sync.RWMutex
	skyLight   Nibbles // nil, если данных нет
	blockLight Nibbles
}

// NewSection создаёт секцию, заполненную воздухом и биомом по умолчанию
func NewSection(blocks, biomes palette.Registry) *Section {
	return &Section{
		blocks: palette.NewBlocks(blocks),
		biomes: palette.NewBiomes(biomes),
		air:    blocks.Air,
	}
}

// blockIndex индекс блока внутри секции
func blockIndex(x, y, z int) int {
	return y<<8 | z<<4 | x
}

// biomeIndex индекс биома, координаты в ячейках 4x4x4
func biomeIndex(x, y, z int) int {
	return y<<4 | z<<2 | x
}

func checkLocal(x, y, z, limit int) error {
	if x < 0 || x >= limit || y < 0 || y >= limit || z < 0 || z >= limit {
		return fmt.Errorf("%w: local (%d,%d,%d) outside [0,%d)", ErrOutOfRange, x, y, z, limit)
	}
	return nil
}

// Block возвращает состояние блока по локальным координатам
func (s *Section) Block(x, y, z int) (palette.Value, error) {
	if err := checkLocal(x, y, z, 16); err != nil {
		return 0, err
	}
	return s.blocks.Get(blockIndex(x, y, z)), nil
}

// SetBlock записывает блок и возвращает предыдущее значение
func (s *Section) SetBlock(x, y, z int, v palette.Value) (palette.Value, error) {
	if err := checkLocal(x, y, z, 16); err != nil {
		return 0, err
	}
	old, err := s.blocks.TrySet(blockIndex(x, y, z), v)
	if err != nil {
		return 0, err
	}
	switch {
	case old == s.air && v != s.air:
		s.blockCount.Add(1)
	case old != s.air && v == s.air:
		s.blockCount.Add(-1)
	}
	return old, nil
}

// Biome возвращает биом по координатам блока (разрешение 4 блока)
func (s *Section) Biome(x, y, z int) (palette.Value, error) {
	if err := checkLocal(x, y, z, 16); err != nil {
		return 0, err
	}
	return s.biomes.Get(biomeIndex(x>>2, y>>2, z>>2)), nil
}

// SetBiome записывает биом для ячейки 4x4x4, содержащей блок
func (s *Section) SetBiome(x, y, z int, v palette.Value) error {
	if err := checkLocal(x, y, z, 16); err != nil {
		return err
	}
	_, err := s.biomes.TrySet(biomeIndex(x>>2, y>>2, z>>2), v)
	return err
}

// Fill заполняет всю секцию одним блоком
func (s *Section) Fill(v palette.Value) error {
	if err := s.blocks.Fill(v); err != nil {
		return err
	}
	if v == s.air {
		s.blockCount.Store(0)
	} else {
		s.blockCount.Store(16 * 16 * 16)
	}
	return nil
}

// BlockCount количество не-воздушных блоков
func (s *Section) BlockCount() int {
	return int(s.blockCount.Load())
}

// IsEmpty секция целиком из воздуха
func (s *Section) IsEmpty() bool {
	return s.BlockCount() == 0
}

// Blocks контейнер состояний блоков
func (s *Section) Blocks() *palette.Container { return s.blocks }

// Biomes контейнер биомов
func (s *Section) Biomes() *palette.Container { return s.biomes }

// SkyLight уровень неба; 0, если данных нет
func (s *Section) SkyLight(x, y, z int) byte {
	s.lightMu.RLock()
	defer s.lightMu.RUnlock()
	if s.skyLight == nil {
		return 0
	}
	return s.skyLight.Get(blockIndex(x&0xF, y&0xF, z&0xF))
}

// SetSkyLight записывает уровень неба, создавая массив при первой записи
func (s *Section) SetSkyLight(x, y, z int, level byte) {
	s.lightMu.Lock()
	defer s.lightMu.Unlock()
	if s.skyLight == nil {
		s.skyLight = NewNibbles(0)
	}
	s.skyLight.Set(blockIndex(x&0xF, y&0xF, z&0xF), level)
}

// BlockLight уровень света от блоков; 0, если данных нет
func (s *Section) BlockLight(x, y, z int) byte {
	s.lightMu.RLock()
	defer s.lightMu.RUnlock()
	if s.blockLight == nil {
		return 0
	}
	return s.blockLight.Get(blockIndex(x&0xF, y&0xF, z&0xF))
}

// SetBlockLight записывает уровень света от блоков
func (s *Section) SetBlockLight(x, y, z int, level byte) {
	s.lightMu.Lock()
	defer s.lightMu.Unlock()
	if s.blockLight == nil {
		s.blockLight = NewNibbles(0)
	}
	s.blockLight.Set(blockIndex(x&0xF, y&0xF, z&0xF), level)
}

// FillSkyLight заменяет весь массив неба одним уровнем
func (s *Section) FillSkyLight(level byte) {
	s.lightMu.Lock()
	s.skyLight = NewNibbles(level)
	s.lightMu.Unlock()
}

// lightArrays копии массивов света для сериализации
func (s *Section) lightArrays() (sky, block Nibbles) {
	s.lightMu.RLock()
	defer s.lightMu.RUnlock()
	if s.skyLight != nil {
		sky = append(Nibbles(nil), s.skyLight...)
	}
	if s.blockLight != nil {
		block = append(Nibbles(nil), s.blockLight...)
	}
	return sky, block
}

func (s *Section) setLightArrays(sky, block Nibbles) {
	s.lightMu.Lock()
	s.skyLight, s.blockLight = sky, block
	s.lightMu.Unlock()
}

// WriteTo пишет секцию в сетевом формате: Short счётчик блоков, блоки, биомы
func (s *Section) WriteTo(w io.Writer) (int64, error) {
	return pk.Tuple{
		pk.Short(s.BlockCount()),
		s.blocks,
		s.biomes,
	}.WriteTo(w)
}

// ReadFrom читает секцию. Счётчик блоков пересчитывается по данным,
// значению из потока не доверяем.
func (s *Section) ReadFrom(r io.Reader) (int64, error) {
	var count pk.Short
	n, err := pk.Tuple{&count, s.blocks, s.biomes}.ReadFrom(r)
	if err != nil {
		return n, err
	}
	air := s.air
	nonAir := s.blocks.CountFunc(func(v palette.Value) bool { return v != air })
	s.blockCount.Store(int32(nonAir))
	return n, nil
}
