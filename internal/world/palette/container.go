package palette

import (
	"fmt"
	"iter"
	"sync"
)

// Container хранит фиксированное число значений реестра в палитровом виде.
//
// Чтение и запись значения, уже присутствующего в палитре, идут под RLock:
// слово данных меняется атомарно. Рост палитры и смена ширины требуют
// эксклюзивной блокировки, поэтому читатель никогда не видит наполовину
// перестроенный контейнер.
type Container struct {
	mu       sync.RWMutex
	policy   Policy
	strategy Strategy
	bits     int
	palette  palette
	data     *BitStorage
}

// New создаёт контейнер, заполненный значением Air реестра
func New(p Policy) *Container {
	return NewFilled(p, p.Registry.Air)
}

// NewBlocks контейнер состояний блоков секции
func NewBlocks(reg Registry) *Container { return New(BlockPolicy(reg)) }

// NewBiomes контейнер биомов секции
func NewBiomes(reg Registry) *Container { return New(BiomePolicy(reg)) }

// NewFilled создаёт контейнер, все элементы которого равны v
func NewFilled(p Policy, v Value) *Container {
	if !p.Registry.Contains(v) {
		panic(fmt.Errorf("%w: %d in %s (size %d)", ErrRegistryOverflow, v, p.Registry.Name, p.Registry.Size))
	}
	return &Container{
		policy:   p,
		strategy: SingleValue,
		palette:  &singleValuePalette{v: v, set: true},
		data:     NewBitStorage(0, p.Size),
	}
}

func (c *Container) checkIndex(i int) error {
	if i < 0 || i >= c.policy.Size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, c.policy.Size)
	}
	return nil
}

func (c *Container) checkValue(v Value) error {
	if !c.policy.Registry.Contains(v) {
		return fmt.Errorf("%w: %d in %s (size %d)", ErrRegistryOverflow, v, c.policy.Registry.Name, c.policy.Registry.Size)
	}
	return nil
}

// TryGet возвращает значение по индексу
func (c *Container) TryGet(i int) (Value, error) {
	if err := c.checkIndex(i); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.palette.value(c.data.Get(i)), nil
}

// Get как TryGet, но паникует на индексе вне диапазона
func (c *Container) Get(i int) Value {
	v, err := c.TryGet(i)
	if err != nil {
		panic(err)
	}
	return v
}

// TrySet записывает значение и возвращает предыдущее.
// При необходимости палитра растёт, автоматического сжатия нет.
func (c *Container) TrySet(i int, v Value) (Value, error) {
	if err := c.checkIndex(i); err != nil {
		return 0, err
	}
	if err := c.checkValue(v); err != nil {
		return 0, err
	}

	c.mu.RLock()
	if id, ok := c.palette.lookup(v); ok {
		old := c.palette.value(c.data.Set(i, id))
		c.mu.RUnlock()
		return old, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(i, v), nil
}

// Set как TrySet, но паникует на некорректном индексе или значении
func (c *Container) Set(i int, v Value) Value {
	old, err := c.TrySet(i, v)
	if err != nil {
		panic(err)
	}
	return old
}

func (c *Container) setLocked(i int, v Value) Value {
	// Между RUnlock и Lock значение могли уже добавить
	id, ok := c.palette.lookup(v)
	if !ok {
		id, ok = c.palette.add(v)
	}
	if !ok {
		c.grow(v)
		id, _ = c.palette.lookup(v)
	}
	return c.palette.value(c.data.Set(i, id))
}

// grow перестраивает контейнер так, чтобы в палитре нашлось место для v.
// Неиспользуемые записи выбрасываются, ширина никогда не уменьшается.
func (c *Container) grow(v Value) {
	used := c.usedLocked()
	used = append(used, v)
	s, b := c.policy.layout(bitsFor(len(used)))
	if b <= c.bits {
		s, b = c.strategy, c.bits
	}
	c.rebuild(s, b, used)
}

// usedLocked значения, на которые ссылается хотя бы один элемент, в порядке палитры.
// Для Direct порядок определяется первым появлением по индексу.
func (c *Container) usedLocked() []Value {
	if c.strategy == Direct {
		seen := make(map[Value]struct{})
		var out []Value
		for i := 0; i < c.policy.Size; i++ {
			v := Value(c.data.Get(i))
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
		return out
	}

	entries := c.palette.values()
	counts := make([]int, len(entries))
	if c.strategy == SingleValue {
		counts[0] = c.policy.Size
	} else {
		for i := 0; i < c.policy.Size; i++ {
			counts[c.data.Get(i)]++
		}
	}
	out := make([]Value, 0, len(entries))
	for id, v := range entries {
		if counts[id] > 0 {
			out = append(out, v)
		}
	}
	return out
}

func (c *Container) rebuild(s Strategy, b int, seed []Value) {
	np := c.policy.newPalette(s, b)
	for _, v := range seed {
		if _, ok := np.add(v); !ok {
			panic(fmt.Sprintf("palette: layout %s/%d cannot hold %d values", s, b, len(seed)))
		}
	}
	nd := NewBitStorage(b, c.policy.Size)
	if b > 0 {
		for i := 0; i < c.policy.Size; i++ {
			id, _ := np.lookup(c.palette.value(c.data.Get(i)))
			nd.Set(i, id)
		}
	}
	c.strategy, c.bits, c.palette, c.data = s, b, np, nd
}

// Compact удаляет неиспользуемые записи палитры и выбирает минимальную
// подходящую ширину. Единственный путь уменьшения ширины.
func (c *Container) Compact() {
	c.mu.Lock()
	defer c.mu.Unlock()
	used := c.usedLocked()
	s, b := c.policy.layout(bitsFor(len(used)))
	c.rebuild(s, b, used)
}

// Fill делает все элементы равными v
func (c *Container) Fill(v Value) error {
	if err := c.checkValue(v); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy, c.bits = SingleValue, 0
	c.palette = &singleValuePalette{v: v, set: true}
	c.data = NewBitStorage(0, c.policy.Size)
	return nil
}

// All перебирает пары (индекс, значение) в порядке индексов.
// Каждый вызов возвращённой функции начинает обход заново.
func (c *Container) All() iter.Seq2[int, Value] {
	return func(yield func(int, Value) bool) {
		for i := 0; i < c.policy.Size; i++ {
			if !yield(i, c.Get(i)) {
				return
			}
		}
	}
}

// ForEach вызывает fn для каждого элемента, пока fn возвращает true
func (c *Container) ForEach(fn func(i int, v Value) bool) {
	for i, v := range c.All() {
		if !fn(i, v) {
			return
		}
	}
}

// CountFunc количество элементов, для которых pred истинен.
// Предикат вызывается один раз на запись палитры.
func (c *Container) CountFunc(pred func(Value) bool) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.strategy {
	case SingleValue:
		if pred(c.palette.value(0)) {
			return c.policy.Size
		}
		return 0
	case Indirect:
		entries := c.palette.values()
		match := make([]bool, len(entries))
		for id, v := range entries {
			match[id] = pred(v)
		}
		n := 0
		for i := 0; i < c.policy.Size; i++ {
			if match[c.data.Get(i)] {
				n++
			}
		}
		return n
	default:
		n := 0
		for i := 0; i < c.policy.Size; i++ {
			if pred(Value(c.data.Get(i))) {
				n++
			}
		}
		return n
	}
}

// Values снимок всех значений
func (c *Container) Values() []Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Value, c.policy.Size)
	for i := range out {
		out[i] = c.palette.value(c.data.Get(i))
	}
	return out
}

// Clone глубокая копия контейнера
func (c *Container) Clone() *Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := &Container{policy: c.policy}
	cp.rebuildFrom(c)
	return cp
}

func (c *Container) rebuildFrom(src *Container) {
	np := src.policy.newPalette(src.strategy, src.bits)
	for _, v := range src.palette.values() {
		np.add(v)
	}
	nd := NewBitStorage(src.bits, src.policy.Size)
	for i := 0; i < src.policy.Size; i++ {
		nd.Set(i, src.data.Get(i))
	}
	c.strategy, c.bits, c.palette, c.data = src.strategy, src.bits, np, nd
}

// Strategy текущая стратегия кодирования
func (c *Container) Strategy() Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategy
}

// Bits текущая ширина индекса
func (c *Container) Bits() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bits
}

// Palette копия записей палитры; для Direct пусто
func (c *Container) Palette() []Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.palette.values()
}

// Len количество элементов
func (c *Container) Len() int { return c.policy.Size }

// Policy правила контейнера
func (c *Container) Policy() Policy { return c.policy }
