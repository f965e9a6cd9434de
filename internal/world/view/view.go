// Package view вычисляет, какие чанки игрок должен видеть, и разницу между двумя видами.
// Все функции чистые и безопасны для параллельного вызова.
package view

import (
	"fmt"
	"slices"

	"github.com/GauntletMC/Graphite/internal/vec"
)

// Shape форма области видимости
type Shape uint8

const (
	Square Shape = iota // Расстояние Чебышёва: (2r+1)^2 чанков
	Circle              // Евклидово: dx^2 + dz^2 <= r^2
)

func (s Shape) String() string {
	switch s {
	case Square:
		return "square"
	case Circle:
		return "circle"
	default:
		return fmt.Sprintf("shape(%d)", uint8(s))
	}
}

// ParseShape разбирает имя формы из конфигурации
func ParseShape(name string) (Shape, error) {
	switch name {
	case "", "square":
		return Square, nil
	case "circle":
		return Circle, nil
	default:
		return Square, fmt.Errorf("view: unknown shape %q", name)
	}
}

// View область видимости игрока
type View struct {
	Center vec.ChunkPos
	Radius int32
	Shape  Shape
}

// Contains входит ли чанк в область
func (v View) Contains(pos vec.ChunkPos) bool {
	if v.Radius < 0 {
		return false
	}
	switch v.Shape {
	case Circle:
		r := int64(v.Radius)
		return v.Center.DistanceSquared(pos) <= r*r
	default:
		return v.Center.ChebyshevDistance(pos) <= v.Radius
	}
}

// Region все чанки области, построчно от минимальных координат
func (v View) Region() []vec.ChunkPos {
	if v.Radius < 0 {
		return nil
	}
	side := int(2*v.Radius + 1)
	out := make([]vec.ChunkPos, 0, side*side)
	for dz := -v.Radius; dz <= v.Radius; dz++ {
		for dx := -v.Radius; dx <= v.Radius; dx++ {
			pos := v.Center.Add(dx, dz)
			if v.Contains(pos) {
				out = append(out, pos)
			}
		}
	}
	return out
}

// Result изменения при переходе от одного вида к другому
type Result struct {
	ToLoad   []vec.ChunkPos
	ToUnload []vec.ChunkPos
}

// Empty нет ни загрузок, ни выгрузок
func (r Result) Empty() bool {
	return len(r.ToLoad) == 0 && len(r.ToUnload) == 0
}

// Diff вычисляет симметричную разность областей. prev == nil означает первый вид:
// вся новая область попадает в ToLoad. Центр, радиус и форма могут меняться
// одновременно, пересечение областей не попадает ни в один список.
func Diff(prev *View, next View) Result {
	if prev == nil {
		return Result{ToLoad: next.Region()}
	}
	var res Result
	for _, pos := range next.Region() {
		if !prev.Contains(pos) {
			res.ToLoad = append(res.ToLoad, pos)
		}
	}
	for _, pos := range prev.Region() {
		if !next.Contains(pos) {
			res.ToUnload = append(res.ToUnload, pos)
		}
	}
	return res
}

// SortClosestFirst упорядочивает ToLoad по удалённости от центра, чтобы ближние
// чанки отправлялись первыми. На корректность не влияет.
func (r Result) SortClosestFirst(center vec.ChunkPos) {
	SortClosestFirst(r.ToLoad, center)
}

// SortClosestFirst сортирует координаты по квадрату расстояния до center
func SortClosestFirst(positions []vec.ChunkPos, center vec.ChunkPos) {
	slices.SortStableFunc(positions, func(a, b vec.ChunkPos) int {
		da, db := center.DistanceSquared(a), center.DistanceSquared(b)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		default:
			return 0
		}
	})
}
