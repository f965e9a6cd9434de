package palette

import (
	"errors"
	"math/bits"
)

// Value непрозрачный индекс состояния (блок или биом) из внешнего реестра
type Value = uint32

var (
	// ErrOutOfRange индекс вне объёма контейнера. Ошибка программиста: координаты
	// должны переводиться в индекс корректно, значение не обрезается.
	ErrOutOfRange = errors.New("palette: index out of range")

	// ErrRegistryOverflow значение не помещается в глобальную ширину реестра.
	// Означает рассинхронизацию реестра и конфигурации, повтор не поможет.
	ErrRegistryOverflow = errors.New("palette: value exceeds registry width")
)

// Registry описывает внешний реестр значений: сколько их всего и какое считается "пустым"
type Registry struct {
	Name string // Имя реестра, например minecraft:block_state
	Size int    // Количество значений, допустимы [0, Size)
	Air  Value  // Значение по умолчанию для новых контейнеров
}

// Реестры ванильного протокола 763 (1.20.1)
var (
	VanillaBlockStates = Registry{Name: "minecraft:block_state", Size: 24135, Air: 0}
	VanillaBiomes      = Registry{Name: "minecraft:worldgen/biome", Size: 64, Air: 0}
)

// GlobalBits ширина прямого (Direct) кодирования для этого реестра
func (r Registry) GlobalBits() int {
	if r.Size <= 2 {
		return 1
	}
	return bits.Len(uint(r.Size - 1))
}

// MaxValue максимально допустимое значение
func (r Registry) MaxValue() Value {
	return Value(r.Size - 1)
}

// Contains проверяет, что значение принадлежит реестру
func (r Registry) Contains(v Value) bool {
	return int(v) < r.Size
}
