package palette

import (
	"fmt"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"
)

// Strategy способ кодирования значений контейнера
type Strategy uint8

const (
	SingleValue Strategy = iota // Все элементы равны одному значению, массив данных пуст
	Indirect                    // Локальная палитра + индексы в неё
	Direct                      // Индексы это сами значения реестра
)

func (s Strategy) String() string {
	switch s {
	case SingleValue:
		return "single"
	case Indirect:
		return "indirect"
	case Direct:
		return "direct"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// palette отображение локальных индексов в значения реестра.
// Порядок записей совпадает с порядком первого появления значения.
type palette interface {
	// lookup ищет значение без вставки
	lookup(v Value) (int, bool)
	// add вставляет новое значение, false если палитра заполнена
	add(v Value) (int, bool)
	value(i int) Value
	values() []Value
	io.WriterTo
	io.ReaderFrom
}

// singleValuePalette хранит ровно одно значение
type singleValuePalette struct {
	v   Value
	set bool
}

func (s *singleValuePalette) lookup(v Value) (int, bool) {
	return 0, s.set && s.v == v
}

func (s *singleValuePalette) add(v Value) (int, bool) {
	if s.set {
		return 0, false
	}
	s.v, s.set = v, true
	return 0, true
}

func (s *singleValuePalette) value(i int) Value {
	if i != 0 {
		panic(fmt.Errorf("%w: single value palette has no id %d", ErrOutOfRange, i))
	}
	return s.v
}

func (s *singleValuePalette) values() []Value {
	if !s.set {
		return nil
	}
	return []Value{s.v}
}

func (s *singleValuePalette) WriteTo(w io.Writer) (int64, error) {
	return pk.VarInt(s.v).WriteTo(w)
}

func (s *singleValuePalette) ReadFrom(r io.Reader) (int64, error) {
	var v pk.VarInt
	n, err := v.ReadFrom(r)
	if err != nil {
		return n, err
	}
	if v < 0 {
		return n, fmt.Errorf("palette: negative single value %d", v)
	}
	s.v, s.set = Value(v), true
	return n, nil
}

// linearPalette маленькая палитра с линейным поиском
type linearPalette struct {
	entries  []Value
	capacity int
}

func (l *linearPalette) lookup(v Value) (int, bool) {
	for i, e := range l.entries {
		if e == v {
			return i, true
		}
	}
	return 0, false
}

func (l *linearPalette) add(v Value) (int, bool) {
	if len(l.entries) >= l.capacity {
		return 0, false
	}
	l.entries = append(l.entries, v)
	return len(l.entries) - 1, true
}

func (l *linearPalette) value(i int) Value {
	if i < 0 || i >= len(l.entries) {
		panic(fmt.Errorf("%w: palette id %d of %d", ErrOutOfRange, i, len(l.entries)))
	}
	return l.entries[i]
}

func (l *linearPalette) values() []Value {
	return append([]Value(nil), l.entries...)
}

func (l *linearPalette) WriteTo(w io.Writer) (int64, error) {
	return writeEntries(w, l.entries)
}

func (l *linearPalette) ReadFrom(r io.Reader) (int64, error) {
	entries, n, err := readEntries(r, l.capacity)
	if err != nil {
		return n, err
	}
	l.entries = entries
	return n, nil
}

// hashPalette палитра среднего размера с обратным индексом
type hashPalette struct {
	entries  []Value
	index    map[Value]int
	capacity int
}

func newHashPalette(capacity int) *hashPalette {
	return &hashPalette{
		entries:  make([]Value, 0, capacity),
		index:    make(map[Value]int, capacity),
		capacity: capacity,
	}
}

func (h *hashPalette) lookup(v Value) (int, bool) {
	i, ok := h.index[v]
	return i, ok
}

func (h *hashPalette) add(v Value) (int, bool) {
	if len(h.entries) >= h.capacity {
		return 0, false
	}
	h.index[v] = len(h.entries)
	h.entries = append(h.entries, v)
	return len(h.entries) - 1, true
}

func (h *hashPalette) value(i int) Value {
	if i < 0 || i >= len(h.entries) {
		panic(fmt.Errorf("%w: palette id %d of %d", ErrOutOfRange, i, len(h.entries)))
	}
	return h.entries[i]
}

func (h *hashPalette) values() []Value {
	return append([]Value(nil), h.entries...)
}

func (h *hashPalette) WriteTo(w io.Writer) (int64, error) {
	return writeEntries(w, h.entries)
}

func (h *hashPalette) ReadFrom(r io.Reader) (int64, error) {
	entries, n, err := readEntries(r, h.capacity)
	if err != nil {
		return n, err
	}
	h.entries = entries
	clear(h.index)
	for i, v := range entries {
		h.index[v] = i
	}
	return n, nil
}

// globalPalette тождественное отображение, на проводе не занимает места
type globalPalette struct {
	registry Registry
}

func (g *globalPalette) lookup(v Value) (int, bool) {
	return int(v), g.registry.Contains(v)
}

func (g *globalPalette) add(v Value) (int, bool) {
	return g.lookup(v)
}

func (g *globalPalette) value(i int) Value {
	return Value(i)
}

func (g *globalPalette) values() []Value { return nil }

func (g *globalPalette) WriteTo(io.Writer) (int64, error) { return 0, nil }

func (g *globalPalette) ReadFrom(io.Reader) (int64, error) { return 0, nil }

func writeEntries(w io.Writer, entries []Value) (n int64, err error) {
	if n, err = pk.VarInt(len(entries)).WriteTo(w); err != nil {
		return
	}
	for _, v := range entries {
		nn, err := pk.VarInt(v).WriteTo(w)
		n += nn
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func readEntries(r io.Reader, capacity int) ([]Value, int64, error) {
	var size pk.VarInt
	n, err := size.ReadFrom(r)
	if err != nil {
		return nil, n, err
	}
	if size < 0 || int(size) > capacity {
		return nil, n, fmt.Errorf("palette: %d entries exceed capacity %d", size, capacity)
	}
	entries := make([]Value, size)
	for i := range entries {
		var v pk.VarInt
		nn, err := v.ReadFrom(r)
		n += nn
		if err != nil {
			return nil, n, err
		}
		if v < 0 {
			return nil, n, fmt.Errorf("palette: negative entry %d", v)
		}
		entries[i] = Value(v)
	}
	return entries, n, nil
}
