package vec

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrRotationOutOfBounds возвращается, если после нормализации угол не попал в [-180, 180]
// (например, на вход пришёл NaN или бесконечность).
var ErrRotationOutOfBounds = errors.New("rotation out of bounds")

// ErrOutsideWorld координата нечисловая или за границей мира
var ErrOutsideWorld = errors.New("coordinate outside world")

// WorldBorder предел |x| и |z| в блоках, как у ванильного сервера
const WorldBorder = 30_000_000

// maxAbsY предел |y|; ванильный клиент отбрасывает позиции дальше
const maxAbsY = 20_000_000

// Vec3f описывает любой тип с координатами (x, y, z).
// Позволяет считать расстояния и для чистых координат, и для полных позиций.
type Vec3f interface {
	X() float64
	Y() float64
	Z() float64
}

// Coordinate представляет точку в мировых координатах
type Coordinate struct {
	XPos float64 `json:"x" yaml:"x"`
	YPos float64 `json:"y" yaml:"y"`
	ZPos float64 `json:"z" yaml:"z"`
}

// NewCoordinate создаёт координату из трёх компонент
func NewCoordinate(x, y, z float64) Coordinate {
	return Coordinate{XPos: x, YPos: y, ZPos: z}
}

func (c Coordinate) X() float64 { return c.XPos }
func (c Coordinate) Y() float64 { return c.YPos }
func (c Coordinate) Z() float64 { return c.ZPos }

// Validate проверяет, что точка числовая и лежит в пределах WorldBorder.
// Только такие координаты безопасно переводить в ChunkPos.
func (c Coordinate) Validate() error {
	for _, v := range [3]float64{c.XPos, c.YPos, c.ZPos} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", ErrOutsideWorld, c)
		}
	}
	if math.Abs(c.XPos) > WorldBorder || math.Abs(c.ZPos) > WorldBorder || math.Abs(c.YPos) > maxAbsY {
		return fmt.Errorf("%w: %v", ErrOutsideWorld, c)
	}
	return nil
}

// Rotation представляет ориентацию (yaw, pitch) в градусах
type Rotation struct {
	Yaw   float32 `json:"yaw" yaml:"yaw"`
	Pitch float32 `json:"pitch" yaml:"pitch"`
}

// Normalize приводит yaw и pitch к диапазону [-180, 180].
// Граничные значения -180 и 180 допустимы и не меняются.
func (r Rotation) Normalize() (Rotation, error) {
	out := Rotation{
		Yaw:   normalizeAngle(r.Yaw),
		Pitch: normalizeAngle(r.Pitch),
	}
	if !angleInBounds(out.Yaw) || !angleInBounds(out.Pitch) {
		return r, fmt.Errorf("%w: yaw=%v pitch=%v", ErrRotationOutOfBounds, r.Yaw, r.Pitch)
	}
	return out, nil
}

// MustNormalize как Normalize, но паникует при нарушении инварианта
func (r Rotation) MustNormalize() Rotation {
	out, err := r.Normalize()
	if err != nil {
		panic(err)
	}
	return out
}

func normalizeAngle(a float32) float32 {
	a = float32(math.Mod(float64(a), 360))
	if a < -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return a
}

func angleInBounds(a float32) bool {
	return a >= -180 && a <= 180
}

// ChangedAtBytePrecision сообщает, отличаются ли повороты после усечения до 8-битного целого.
// Усечение идёт к нулю (не округление), поэтому 10.2 и 10.9 считаются одинаковыми.
func (r Rotation) ChangedAtBytePrecision(other Rotation) bool {
	return truncByte(r.Yaw) != truncByte(other.Yaw) || truncByte(r.Pitch) != truncByte(other.Pitch)
}

func truncByte(a float32) uint8 {
	return uint8(int32(a))
}

// AngleByte переводит градусы в протокольный угол (1/256 оборота)
func AngleByte(deg float32) int8 {
	return int8(int32(math.Floor(float64(deg) * 256.0 / 360.0)))
}

// Position объединяет координату и поворот
type Position struct {
	Coord Coordinate `json:"coord" yaml:"coord"`
	Rot   Rotation   `json:"rot" yaml:"rot"`
}

func (p Position) X() float64 { return p.Coord.XPos }
func (p Position) Y() float64 { return p.Coord.YPos }
func (p Position) Z() float64 { return p.Coord.ZPos }

// String нужен для логов
func (p Position) String() string {
	return fmt.Sprintf("Position{x: %.3f, y: %.3f, z: %.3f, yaw: %.2f, pitch: %.2f}",
		p.Coord.XPos, p.Coord.YPos, p.Coord.ZPos, p.Rot.Yaw, p.Rot.Pitch)
}

func toMgl(v Vec3f) mgl64.Vec3 {
	return mgl64.Vec3{v.X(), v.Y(), v.Z()}
}

// DistanceSquared возвращает квадрат расстояния между двумя точками
func DistanceSquared(a, b Vec3f) float64 {
	d := toMgl(b).Sub(toMgl(a))
	return d.Dot(d)
}

// Distance возвращает расстояние между двумя точками
func Distance(a, b Vec3f) float64 {
	return math.Sqrt(DistanceSquared(a, b))
}
