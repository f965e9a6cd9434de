package palette

import (
	"fmt"
	"io"
	"sync/atomic"

	pk "github.com/Tnze/go-mc/net/packet"
)

// BitStorage упакованный массив индексов фиксированной ширины поверх []uint64.
// Значения не пересекают границу слова, первый элемент лежит в младших битах.
// Отдельное слово читается и пишется атомарно, поэтому запись без изменения
// ширины не требует эксклюзивной блокировки контейнера.
type BitStorage struct {
	data          []uint64
	mask          uint64
	bits          int
	length        int
	valuesPerLong int
}

// NewBitStorage создаёт хранилище на length значений по bits бит.
// При bits == 0 хранилище пустое и всегда возвращает 0.
func NewBitStorage(bits, length int) *BitStorage {
	if bits == 0 {
		return &BitStorage{length: length}
	}
	vpl := 64 / bits
	return &BitStorage{
		data:          make([]uint64, (length+vpl-1)/vpl),
		mask:          1<<uint(bits) - 1,
		bits:          bits,
		length:        length,
		valuesPerLong: vpl,
	}
}

// LongsFor количество 64-битных слов для length значений шириной bits
func LongsFor(bits, length int) int {
	if bits == 0 {
		return 0
	}
	vpl := 64 / bits
	return (length + vpl - 1) / vpl
}

func (b *BitStorage) locate(i int) (word int, offset uint) {
	word = i / b.valuesPerLong
	offset = uint(i-word*b.valuesPerLong) * uint(b.bits)
	return
}

// Get возвращает значение по индексу
func (b *BitStorage) Get(i int) int {
	if b.bits == 0 {
		return 0
	}
	c, off := b.locate(i)
	return int(atomic.LoadUint64(&b.data[c]) >> off & b.mask)
}

// Set записывает значение и возвращает предыдущее
func (b *BitStorage) Set(i, v int) int {
	if b.bits == 0 {
		return 0
	}
	c, off := b.locate(i)
	val := uint64(v) & b.mask
	for {
		old := atomic.LoadUint64(&b.data[c])
		upd := old&^(b.mask<<off) | val<<off
		if atomic.CompareAndSwapUint64(&b.data[c], old, upd) {
			return int(old >> off & b.mask)
		}
	}
}

// Bits ширина одного значения
func (b *BitStorage) Bits() int { return b.bits }

// Len количество значений
func (b *BitStorage) Len() int { return b.length }

// Raw возвращает копию слов
func (b *BitStorage) Raw() []uint64 {
	out := make([]uint64, len(b.data))
	for i := range b.data {
		out[i] = atomic.LoadUint64(&b.data[i])
	}
	return out
}

// WriteTo пишет VarInt с количеством слов и сами слова big-endian
func (b *BitStorage) WriteTo(w io.Writer) (int64, error) {
	n, err := pk.VarInt(len(b.data)).WriteTo(w)
	if err != nil {
		return n, err
	}
	for i := range b.data {
		nn, err := pk.Long(atomic.LoadUint64(&b.data[i])).WriteTo(w)
		n += nn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadFrom читает массив слов. Количество слов обязано совпасть с ожидаемым
// для текущих bits и length, иначе данные считаются повреждёнными.
func (b *BitStorage) ReadFrom(r io.Reader) (int64, error) {
	var count pk.VarInt
	n, err := count.ReadFrom(r)
	if err != nil {
		return n, err
	}
	if int(count) != len(b.data) {
		return n, fmt.Errorf("palette: data array length %d, want %d for %d bits", count, len(b.data), b.bits)
	}
	for i := range b.data {
		var v pk.Long
		nn, err := v.ReadFrom(r)
		n += nn
		if err != nil {
			return n, err
		}
		b.data[i] = uint64(v)
	}
	return n, nil
}
