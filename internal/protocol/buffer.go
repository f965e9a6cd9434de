package protocol

import (
	"bytes"
	"fmt"
	"io"

	pk "github.com/Tnze/go-mc/net/packet"
)

// Buffer накапливает кадры пакетов (VarInt длина, VarInt id, поля) для одной
// записи в соединение. Сжатие не используется.
type Buffer struct {
	buf     bytes.Buffer
	payload bytes.Buffer
	packets int
}

// NewBuffer создаёт пустой буфер
func NewBuffer() *Buffer {
	return &Buffer{}
}

// WritePacket кодирует поля и добавляет кадр. При ошибке кодирования буфер не меняется.
func (b *Buffer) WritePacket(id PacketID, fields ...pk.FieldEncoder) error {
	b.payload.Reset()
	for i, f := range fields {
		if _, err := f.WriteTo(&b.payload); err != nil {
			return fmt.Errorf("encode %s field %d: %w", id, i, err)
		}
	}
	p := pk.Packet{ID: int32(id), Data: b.payload.Bytes()}
	if err := p.Pack(&b.buf, -1); err != nil {
		return fmt.Errorf("frame %s: %w", id, err)
	}
	b.packets++
	return nil
}

// Bytes содержимое буфера; действительно до следующей записи
func (b *Buffer) Bytes() []byte { return b.buf.Bytes() }

// Len размер накопленных данных в байтах
func (b *Buffer) Len() int { return b.buf.Len() }

// Packets количество накопленных пакетов
func (b *Buffer) Packets() int { return b.packets }

// Reset очищает буфер для повторного использования
func (b *Buffer) Reset() {
	b.buf.Reset()
	b.packets = 0
}

// ReadFrames разбирает поток кадров. Используется в тестах и отладочных утилитах.
func ReadFrames(data []byte) ([]pk.Packet, error) {
	r := bytes.NewReader(data)
	var out []pk.Packet
	for r.Len() > 0 {
		var p pk.Packet
		if err := p.UnPack(r, -1); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return out, fmt.Errorf("frame %d: %w", len(out), err)
		}
		// UnPack переиспользует буфер, поэтому копируем
		p.Data = append([]byte(nil), p.Data...)
		out = append(out, p)
	}
	return out, nil
}
