package generator

import (
	"github.com/aquilax/go-perlin"
)

// Noise двумерный шум Перлина со значениями в [0, 1].
// Только чтение после создания, безопасен для параллельных генераций.
type Noise struct {
	p     *perlin.Perlin
	scale float64
}

// NewNoise создаёт шум для сида
func NewNoise(seed int64, scale float64) *Noise {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Noise{p: perlin.NewPerlin(alpha, beta, n, seed), scale: scale}
}

// At значение шума в мировых координатах блока
func (n *Noise) At(x, z int) float64 {
	v := (n.p.Noise2D(float64(x)*n.scale, float64(z)*n.scale) + 1) / 2
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
