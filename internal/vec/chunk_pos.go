package vec

import (
	"fmt"
	"math"
)

// SectionSize длина ребра секции чанка в блоках
const SectionSize = 16

// ChunkPos представляет координаты чанка (колонки секций) в мире
type ChunkPos struct {
	X int32 `json:"x"`
	Z int32 `json:"z"`
}

// ChunkPosOf вычисляет чанк, содержащий точку (деление с округлением вниз)
func ChunkPosOf(v Vec3f) ChunkPos {
	return ChunkPos{
		X: int32(math.Floor(v.X())) >> 4,
		Z: int32(math.Floor(v.Z())) >> 4,
	}
}

// Add смещает координаты чанка
func (c ChunkPos) Add(dx, dz int32) ChunkPos {
	return ChunkPos{X: c.X + dx, Z: c.Z + dz}
}

// ChebyshevDistance возвращает расстояние Чебышёва (квадратное окно)
func (c ChunkPos) ChebyshevDistance(other ChunkPos) int32 {
	dx := absInt32(c.X - other.X)
	dz := absInt32(c.Z - other.Z)
	if dx > dz {
		return dx
	}
	return dz
}

// DistanceSquared возвращает квадрат евклидова расстояния в чанках
func (c ChunkPos) DistanceSquared(other ChunkPos) int64 {
	dx := int64(c.X - other.X)
	dz := int64(c.Z - other.Z)
	return dx*dx + dz*dz
}

// MinBlock возвращает блок с минимальными X/Z внутри чанка
func (c ChunkPos) MinBlock() (x, z int) {
	return int(c.X) << 4, int(c.Z) << 4
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
