package chunk

import "fmt"

// Status стадия жизненного цикла чанка
type Status int32

const (
	Unloaded  Status = iota // Нет в памяти
	Loading                 // Загрузка или генерация в процессе, отправлять нельзя
	Loaded                  // Данные готовы
	Unloading               // Зрителей нет, ждёт выгрузки
)

func (s Status) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Unloading:
		return "unloading"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// legalTransitions допустимые переходы. Unloading -> Loaded, если чанк снова
// понадобился до выгрузки; Loading -> Unloaded, если загрузка провалилась.
var legalTransitions = map[Status][]Status{
	Unloaded:  {Loading},
	Loading:   {Loaded, Unloaded},
	Loaded:    {Unloading},
	Unloading: {Unloaded, Loaded},
}

// Status текущая стадия
func (c *Chunk) Status() Status {
	return Status(c.status.Load())
}

// Transition переводит чанк в стадию to, если переход допустим
func (c *Chunk) Transition(to Status) error {
	for {
		from := c.Status()
		if !canTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s at %s", ErrIllegalTransition, from, to, c.pos)
		}
		if c.status.CompareAndSwap(int32(from), int32(to)) {
			return nil
		}
	}
}

// IsLoaded данные чанка можно сериализовать
func (c *Chunk) IsLoaded() bool {
	return c.Status() == Loaded
}

func canTransition(from, to Status) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
