package palette

import "math/bits"

// linearMaxBits до этой ширины палитра ищется перебором, дальше через map
const linearMaxBits = 4

// Policy правила выбора ширины для вида контейнера.
// Ширины Indirect в диапазоне [MinIndirectBits, MaxIndirectBits], выше используется Direct.
type Policy struct {
	Name            string   // blocks или biomes, для логов и метрик
	Size            int      // Количество элементов контейнера
	MinIndirectBits int      // Минимальная ширина косвенного кодирования
	MaxIndirectBits int      // Максимальная ширина косвенного кодирования
	Registry        Registry // Реестр значений
}

// BlockPolicy 16x16x16 состояний блоков, косвенная ширина 4..8 бит
func BlockPolicy(reg Registry) Policy {
	return Policy{Name: "blocks", Size: 16 * 16 * 16, MinIndirectBits: 4, MaxIndirectBits: 8, Registry: reg}
}

// BiomePolicy 4x4x4 биомов, косвенная ширина 1..3 бита
func BiomePolicy(reg Registry) Policy {
	return Policy{Name: "biomes", Size: 4 * 4 * 4, MinIndirectBits: 1, MaxIndirectBits: 3, Registry: reg}
}

// bitsFor минимальная ширина индекса для n различных значений
func bitsFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// layout переводит требуемую ширину в стратегию и фактическую ширину хранения
func (p Policy) layout(need int) (Strategy, int) {
	if need == 0 {
		return SingleValue, 0
	}
	global := p.Registry.GlobalBits()
	w := max(need, p.MinIndirectBits)
	if w > p.MaxIndirectBits || w >= global {
		return Direct, global
	}
	return Indirect, w
}

// layoutForWire определяет стратегию по ширине, прочитанной из потока
func (p Policy) layoutForWire(b int) (Strategy, int) {
	switch {
	case b == 0:
		return SingleValue, 0
	case b > p.MaxIndirectBits:
		return Direct, p.Registry.GlobalBits()
	case b < p.MinIndirectBits:
		return Indirect, p.MinIndirectBits
	default:
		return Indirect, b
	}
}

func (p Policy) newPalette(s Strategy, b int) palette {
	switch s {
	case SingleValue:
		return &singleValuePalette{}
	case Direct:
		return &globalPalette{registry: p.Registry}
	}
	if b <= linearMaxBits {
		return &linearPalette{capacity: 1 << b}
	}
	return newHashPalette(1 << b)
}
