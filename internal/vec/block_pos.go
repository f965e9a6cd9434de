package vec

import "math"

// BlockPos представляет целочисленные координаты блока
type BlockPos struct {
	X int
	Y int
	Z int
}

// BlockPosOf возвращает блок, в котором находится точка
func BlockPosOf(v Vec3f) BlockPos {
	return BlockPos{
		X: int(math.Floor(v.X())),
		Y: int(math.Floor(v.Y())),
		Z: int(math.Floor(v.Z())),
	}
}

// Chunk возвращает координаты чанка блока
func (b BlockPos) Chunk() ChunkPos {
	return ChunkPos{X: int32(b.X >> 4), Z: int32(b.Z >> 4)}
}

// Local возвращает координаты X/Z внутри чанка (0..15)
func (b BlockPos) Local() (x, z int) {
	return b.X & 0xF, b.Z & 0xF
}

// Add складывает два вектора
func (b BlockPos) Add(other BlockPos) BlockPos {
	return BlockPos{X: b.X + other.X, Y: b.Y + other.Y, Z: b.Z + other.Z}
}

// SectionIndexOf номер секции для мировой высоты y при нижней границе мира minY
func SectionIndexOf(y, minY int) int {
	return (y - minY) >> 4
}
