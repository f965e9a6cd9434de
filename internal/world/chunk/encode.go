package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/bits"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/GauntletMC/Graphite/internal/vec"
	"github.com/GauntletMC/Graphite/internal/world/palette"
)

// ErrNotLoaded данные чанка ещё не готовы к отправке
var ErrNotLoaded = errors.New("chunk: not loaded")

type heightmaps struct {
	MotionBlocking []int64 `nbt:"MOTION_BLOCKING"`
	WorldSurface   []int64 `nbt:"WORLD_SURFACE"`
}

// packedHeightmap упаковывает высоты относительно MinY шириной bits.Len(height+1)
func (c *Chunk) packedHeightmap() []int64 {
	hm := c.Heightmap()
	storage := palette.NewBitStorage(bits.Len(uint(c.dim.Height+1)), len(hm))
	for i, h := range hm {
		storage.Set(i, int(h)-c.dim.MinY)
	}
	raw := storage.Raw()
	out := make([]int64, len(raw))
	for i, v := range raw {
		out[i] = int64(v)
	}
	return out
}

// sectionData конкатенация сетевого представления всех секций
func (c *Chunk) sectionData() ([]byte, error) {
	var buf bytes.Buffer
	for i, s := range c.sections {
		if _, err := s.WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// lightData блок света пакета Chunk Data and Update Light (протокол 763).
// Маски содержат секцию под миром и секцию над миром.
type lightData struct {
	SkyMask, BlockMask           pk.BitSet
	EmptySkyMask, EmptyBlockMask pk.BitSet
	Sky, Block                   []pk.ByteArray
}

func (c *Chunk) light() *lightData {
	n := len(c.sections) + 2
	words := (n + 63) / 64
	l := &lightData{
		SkyMask:        make(pk.BitSet, words),
		BlockMask:      make(pk.BitSet, words),
		EmptySkyMask:   make(pk.BitSet, words),
		EmptyBlockMask: make(pk.BitSet, words),
		Sky:            []pk.ByteArray{},
		Block:          []pk.ByteArray{},
	}
	for i, s := range c.sections {
		sky, block := s.lightArrays()
		if sky != nil {
			l.SkyMask.Set(i+1, true)
			l.Sky = append(l.Sky, pk.ByteArray(sky))
		} else {
			l.EmptySkyMask.Set(i+1, true)
		}
		if block != nil {
			l.BlockMask.Set(i+1, true)
			l.Block = append(l.Block, pk.ByteArray(block))
		} else {
			l.EmptyBlockMask.Set(i+1, true)
		}
	}
	return l
}

func (l *lightData) WriteTo(w io.Writer) (int64, error) {
	return pk.Tuple{
		pk.Boolean(true), // Trust Edges
		l.SkyMask,
		l.BlockMask,
		l.EmptySkyMask,
		l.EmptyBlockMask,
		pk.Array(l.Sky),
		pk.Array(l.Block),
	}.WriteTo(w)
}

// WriteTo пишет тело пакета Chunk Data and Update Light после координат:
// карты высот (NBT), данные секций, блок-сущности (нет), свет.
func (c *Chunk) WriteTo(w io.Writer) (int64, error) {
	if !c.IsLoaded() {
		return 0, fmt.Errorf("%w: %s is %s", ErrNotLoaded, c.pos, c.Status())
	}
	data, err := c.sectionData()
	if err != nil {
		return 0, err
	}
	packed := c.packedHeightmap()
	return pk.Tuple{
		pk.NBT(heightmaps{MotionBlocking: packed, WorldSurface: packed}),
		pk.ByteArray(data),
		pk.VarInt(0),
		c.light(),
	}.WriteTo(w)
}

const (
	storedSkyLight   = 1 << 0
	storedBlockLight = 1 << 1
)

// MarshalBinary кодирует чанк для хранилища: число секций, секции в сетевом
// формате и массивы света. Карта высот не хранится и пересчитывается при чтении.
func (c *Chunk) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := pk.VarInt(len(c.sections)).WriteTo(&buf); err != nil {
		return nil, err
	}
	for i, s := range c.sections {
		if _, err := s.WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		sky, block := s.lightArrays()
		var flags byte
		if sky != nil {
			flags |= storedSkyLight
		}
		if block != nil {
			flags |= storedBlockLight
		}
		buf.WriteByte(flags)
		buf.Write(sky)
		buf.Write(block)
	}
	return buf.Bytes(), nil
}

// Unmarshal восстанавливает чанк из MarshalBinary. Чанк возвращается в статусе Unloaded.
func Unmarshal(data []byte, pos vec.ChunkPos, dim Dimension) (*Chunk, error) {
	c := New(pos, dim)
	r := bytes.NewReader(data)

	var count pk.VarInt
	if _, err := count.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("chunk %s: read section count: %w", pos, err)
	}
	if int(count) != len(c.sections) {
		return nil, fmt.Errorf("chunk %s: stored %d sections, dimension has %d", pos, count, len(c.sections))
	}
	for i, s := range c.sections {
		if _, err := s.ReadFrom(r); err != nil {
			return nil, fmt.Errorf("chunk %s: section %d: %w", pos, i, err)
		}
		flags, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("chunk %s: section %d light flags: %w", pos, i, err)
		}
		var sky, block Nibbles
		if flags&storedSkyLight != 0 {
			if sky, err = readNibbles(r); err != nil {
				return nil, fmt.Errorf("chunk %s: section %d sky light: %w", pos, i, err)
			}
		}
		if flags&storedBlockLight != 0 {
			if block, err = readNibbles(r); err != nil {
				return nil, fmt.Errorf("chunk %s: section %d block light: %w", pos, i, err)
			}
		}
		s.setLightArrays(sky, block)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("chunk %s: %d trailing bytes", pos, r.Len())
	}
	c.RecalculateHeightmap()
	return c, nil
}

func readNibbles(r io.Reader) (Nibbles, error) {
	n := make(Nibbles, NibbleSize)
	if _, err := io.ReadFull(r, n); err != nil {
		return nil, err
	}
	return n, nil
}
