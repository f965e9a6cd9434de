package palette

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recoverErr(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}

func TestNewContainerIsSingleAir(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)

	assert.Equal(t, SingleValue, c.Strategy())
	assert.Equal(t, 0, c.Bits())
	assert.Equal(t, 4096, c.Len())
	for i, v := range c.All() {
		require.Equal(t, VanillaBlockStates.Air, v, "Элемент %d должен быть воздухом", i)
	}
}

func TestRoundTripUnderPromotion(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	expected := make([]Value, c.Len())

	type stage struct {
		distinct int
		strategy Strategy
		bits     int
	}
	// Воздух тоже считается различным значением
	stages := []stage{
		{1, SingleValue, 0},
		{2, Indirect, 4},
		{16, Indirect, 4},
		{17, Indirect, 5},
		{33, Indirect, 6},
		{129, Indirect, 8},
		{256, Indirect, 8},
		{257, Direct, 15},
		{400, Direct, 15},
	}

	next := 1
	for _, st := range stages {
		for ; next < st.distinct; next++ {
			idx := (next * 13) % c.Len()
			c.Set(idx, Value(next*7))
			expected[idx] = Value(next * 7)
		}
		assert.Equal(t, st.strategy, c.Strategy(), "стратегия при %d значениях", st.distinct)
		assert.Equal(t, st.bits, c.Bits(), "ширина при %d значениях", st.distinct)
		assert.Equal(t, expected, c.Values(), "значения должны сохраниться после смены ширины")
	}
}

func TestPaletteKeepsFirstSeenOrder(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	c.Set(10, 5)
	c.Set(11, 9)
	c.Set(12, 5)
	c.Set(13, 7)

	assert.Equal(t, []Value{0, 5, 9, 7}, c.Palette())
}

func TestSetReturnsPrevious(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	assert.Equal(t, Value(0), c.Set(1, 42))
	assert.Equal(t, Value(42), c.Set(1, 43))
	old, err := c.TrySet(1, 43)
	require.NoError(t, err)
	assert.Equal(t, Value(43), old)
}

func TestSmallPaletteWritesNeverGoDirect(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := NewBlocks(VanillaBlockStates)
	values := []Value{0, 1, 2, 3, 10, 11, 12, 13, 100, 200, 300, 400}

	for range 20000 {
		c.Set(rng.Intn(c.Len()), values[rng.Intn(len(values))])
	}

	assert.Equal(t, Indirect, c.Strategy())
	assert.Equal(t, 4, c.Bits())
}

func TestStaleEntriesAreReclaimedBeforeGrowing(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	for v := Value(1); v <= 1000; v++ {
		c.Set(0, v)
	}

	assert.Equal(t, Indirect, c.Strategy())
	assert.Equal(t, 4, c.Bits(), "в каждый момент используется не больше двух значений")
	assert.Equal(t, Value(1000), c.Get(0))
	assert.Equal(t, Value(0), c.Get(1))
}

func TestCompactDemotes(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	for i := range 20 {
		c.Set(i, Value(i+1))
	}
	require.Equal(t, 5, c.Bits())

	// Автоматического уменьшения нет
	for i := range c.Len() {
		c.Set(i, 7)
	}
	assert.Equal(t, 5, c.Bits())

	c.Compact()
	assert.Equal(t, SingleValue, c.Strategy())
	assert.Equal(t, 0, c.Bits())
	assert.Equal(t, []Value{7}, c.Palette())
	for _, v := range c.All() {
		require.Equal(t, Value(7), v)
	}
}

func TestCompactFromDirect(t *testing.T) {
	c := NewBiomes(VanillaBiomes)
	for i := range 20 {
		c.Set(i, Value(i))
	}
	require.Equal(t, Direct, c.Strategy())
	require.Equal(t, 6, c.Bits())

	for i := 2; i < 20; i++ {
		c.Set(i, 1)
	}
	c.Compact()
	assert.Equal(t, Indirect, c.Strategy())
	assert.Equal(t, 1, c.Bits())
	assert.Equal(t, Value(0), c.Get(0))
	assert.Equal(t, Value(1), c.Get(5))
	assert.Equal(t, Value(0), c.Get(63))
}

func TestBiomeWidths(t *testing.T) {
	tests := []struct {
		distinct int
		strategy Strategy
		bits     int
	}{
		{1, SingleValue, 0},
		{2, Indirect, 1},
		{3, Indirect, 2},
		{4, Indirect, 2},
		{5, Indirect, 3},
		{8, Indirect, 3},
		{9, Direct, 6},
	}
	for _, tt := range tests {
		c := NewBiomes(VanillaBiomes)
		for v := 1; v < tt.distinct; v++ {
			c.Set(v, Value(v))
		}
		assert.Equal(t, tt.strategy, c.Strategy(), "%d значений", tt.distinct)
		assert.Equal(t, tt.bits, c.Bits(), "%d значений", tt.distinct)
	}
}

func TestOutOfRangeAndOverflow(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)

	for _, idx := range []int{-1, 4096, 10000} {
		err := recoverErr(func() { c.Get(idx) })
		assert.True(t, errors.Is(err, ErrOutOfRange), "Get(%d) должен паниковать с ErrOutOfRange", idx)

		_, err = c.TryGet(idx)
		assert.ErrorIs(t, err, ErrOutOfRange)

		_, err = c.TrySet(idx, 1)
		assert.ErrorIs(t, err, ErrOutOfRange)
	}

	_, err := c.TrySet(0, Value(VanillaBlockStates.Size))
	assert.ErrorIs(t, err, ErrRegistryOverflow)
	err = recoverErr(func() { c.Set(0, 1<<20) })
	assert.ErrorIs(t, err, ErrRegistryOverflow)

	assert.Equal(t, SingleValue, c.Strategy(), "неудачная запись не меняет контейнер")
}

func TestAllIsRestartable(t *testing.T) {
	c := NewBiomes(VanillaBiomes)
	c.Set(3, 9)

	seen := 0
	for i, v := range c.All() {
		if i == 3 {
			assert.Equal(t, Value(9), v)
			break
		}
		seen++
	}
	assert.Equal(t, 3, seen)

	total := 0
	c.ForEach(func(int, Value) bool { total++; return true })
	assert.Equal(t, 64, total)
}

func TestCountFunc(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	isAir := func(v Value) bool { return v == 0 }
	assert.Equal(t, 4096, c.CountFunc(isAir))

	for i := range 100 {
		c.Set(i, Value(1+i%3))
	}
	assert.Equal(t, 3996, c.CountFunc(isAir))

	for i := range 300 {
		c.Set(i, Value(i+1))
	}
	require.Equal(t, Direct, c.Strategy())
	assert.Equal(t, 3796, c.CountFunc(isAir))
}

func TestWireSingleValue(t *testing.T) {
	c := NewFilled(BlockPolicy(VanillaBlockStates), 1)

	var buf bytes.Buffer
	n, err := c.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []byte{0x00, 0x01, 0x00}, buf.Bytes(), "ширина 0, значение, пустой массив")
}

func TestWireIndirectLayout(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	c.Set(0, 1)
	c.Set(17, 300)

	var buf bytes.Buffer
	_, err := c.WriteTo(&buf)
	require.NoError(t, err)

	b := buf.Bytes()
	// ширина, длина палитры, записи (300 занимает два байта VarInt), 256 слов
	header := []byte{0x04, 0x03, 0x00, 0x01, 0xAC, 0x02, 0x80, 0x02}
	require.Equal(t, header, b[:len(header)])
	require.Len(t, b, len(header)+256*8)

	words := b[len(header):]
	// 16 значений на слово, первый элемент в младших битах
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(words[0:8]))
	assert.Equal(t, uint64(2)<<4, binary.BigEndian.Uint64(words[8:16]))
}

func TestWireDirectLayout(t *testing.T) {
	c := NewBiomes(VanillaBiomes)
	for i := range 64 {
		c.Set(i, Value(i))
	}
	require.Equal(t, Direct, c.Strategy())

	var buf bytes.Buffer
	_, err := c.WriteTo(&buf)
	require.NoError(t, err)

	b := buf.Bytes()
	// 10 значений по 6 бит на слово, 7 слов, палитры нет
	require.Equal(t, []byte{0x06, 0x07}, b[:2])
	require.Len(t, b, 2+7*8)
	first := binary.BigEndian.Uint64(b[2:10])
	for i := range 10 {
		assert.Equal(t, uint64(i), first>>(6*i)&0x3F)
	}
}

func TestWireRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, distinct := range []int{1, 3, 20, 100, 500} {
		src := NewBlocks(VanillaBlockStates)
		for i := range src.Len() {
			src.Set(i, Value(rng.Intn(distinct)))
		}

		var buf bytes.Buffer
		written, err := src.WriteTo(&buf)
		require.NoError(t, err)

		dst := NewBlocks(VanillaBlockStates)
		read, err := dst.ReadFrom(&buf)
		require.NoError(t, err)
		assert.Equal(t, written, read)
		assert.Equal(t, src.Strategy(), dst.Strategy())
		assert.Equal(t, src.Bits(), dst.Bits())
		assert.Equal(t, src.Values(), dst.Values(), "%d значений", distinct)
	}
}

func TestReadFromRejectsCorruptData(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	c.Set(5, 2)
	before := c.Values()

	tests := map[string][]byte{
		"неверная длина массива": {0x04, 0x01, 0x00, 0x05},
		"индекс вне палитры":     append([]byte{0x04, 0x01, 0x00, 0x80, 0x02}, indirectWords(1)...),
		"обрыв потока":           {0x04, 0x02},
		"значение вне реестра":   {0x00, 0xFF, 0xFF, 0x7F, 0x00},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.ReadFrom(bytes.NewReader(data))
			assert.Error(t, err)
			assert.Equal(t, before, c.Values(), "контейнер не должен меняться")
		})
	}
}

// indirectWords 256 слов по 4 бита, первый элемент равен id
func indirectWords(id uint64) []byte {
	out := make([]byte, 256*8)
	binary.BigEndian.PutUint64(out, id)
	return out
}

func TestConcurrentWritesAndReads(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	const workers = 8
	per := c.Len() / workers

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w * per; i < (w+1)*per; i++ {
				// Значения заставляют контейнер расширяться во время записи
				c.Set(i, Value(1+i%300))
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 2000 {
			_ = c.Get(rand.Intn(c.Len()))
		}
	}()
	wg.Wait()

	for i, v := range c.All() {
		require.Equal(t, Value(1+i%300), v, "индекс %d", i)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	c.Set(1, 5)
	cp := c.Clone()
	c.Set(1, 6)

	assert.Equal(t, Value(5), cp.Get(1))
	assert.Equal(t, Value(6), c.Get(1))
}

func TestFill(t *testing.T) {
	c := NewBlocks(VanillaBlockStates)
	c.Set(0, 3)
	require.NoError(t, c.Fill(9))
	assert.Equal(t, SingleValue, c.Strategy())
	assert.Equal(t, Value(9), c.Get(4095))
	assert.ErrorIs(t, c.Fill(Value(VanillaBlockStates.Size)), ErrRegistryOverflow)
}
