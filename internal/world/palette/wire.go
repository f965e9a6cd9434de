package palette

import (
	"fmt"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"
)

// WriteTo кодирует контейнер в сетевом формате:
// UnsignedByte ширины, палитра (VarInt для SingleValue, VarInt-массив для
// Indirect, ничего для Direct), затем VarInt-длина и big-endian слова данных.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, err := pk.UnsignedByte(c.bits).WriteTo(w)
	if err != nil {
		return n, err
	}
	nn, err := c.palette.WriteTo(w)
	n += nn
	if err != nil {
		return n, err
	}
	nn, err = c.data.WriteTo(w)
	return n + nn, err
}

// ReadFrom заменяет содержимое контейнера данными из потока.
// При ошибке контейнер не меняется.
func (c *Container) ReadFrom(r io.Reader) (int64, error) {
	var wireBits pk.UnsignedByte
	n, err := wireBits.ReadFrom(r)
	if err != nil {
		return n, err
	}

	s, b := c.policy.layoutForWire(int(wireBits))
	p := c.policy.newPalette(s, b)
	nn, err := p.ReadFrom(r)
	n += nn
	if err != nil {
		return n, fmt.Errorf("read %s palette: %w", c.policy.Name, err)
	}

	data := NewBitStorage(b, c.policy.Size)
	nn, err = data.ReadFrom(r)
	n += nn
	if err != nil {
		return n, fmt.Errorf("read %s data: %w", c.policy.Name, err)
	}

	if err := validate(s, p, data, c.policy.Registry); err != nil {
		return n, fmt.Errorf("read %s: %w", c.policy.Name, err)
	}

	c.mu.Lock()
	c.strategy, c.bits, c.palette, c.data = s, b, p, data
	c.mu.Unlock()
	return n, nil
}

func validate(s Strategy, p palette, data *BitStorage, reg Registry) error {
	switch s {
	case SingleValue:
		if v := p.value(0); !reg.Contains(v) {
			return fmt.Errorf("%w: %d", ErrRegistryOverflow, v)
		}
	case Indirect:
		entries := p.values()
		for _, v := range entries {
			if !reg.Contains(v) {
				return fmt.Errorf("%w: %d", ErrRegistryOverflow, v)
			}
		}
		for i := 0; i < data.Len(); i++ {
			if id := data.Get(i); id >= len(entries) {
				return fmt.Errorf("%w: palette id %d at %d, palette has %d entries", ErrOutOfRange, id, i, len(entries))
			}
		}
	case Direct:
		for i := 0; i < data.Len(); i++ {
			if v := Value(data.Get(i)); !reg.Contains(v) {
				return fmt.Errorf("%w: %d at %d", ErrRegistryOverflow, v, i)
			}
		}
	}
	return nil
}
