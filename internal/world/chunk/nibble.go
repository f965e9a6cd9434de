package chunk

// NibbleSize размер массива света секции: 4096 значений по 4 бита
const NibbleSize = 2048

// Nibbles массив 4-битных значений света, индекс y<<8 | z<<4 | x.
// Чётный индекс лежит в младшей половине байта.
type Nibbles []byte

// NewNibbles создаёт массив, заполненный значением level (0..15)
func NewNibbles(level byte) Nibbles {
	n := make(Nibbles, NibbleSize)
	if level != 0 {
		b := level&0xF | level<<4
		for i := range n {
			n[i] = b
		}
	}
	return n
}

// Get возвращает значение по индексу блока
func (n Nibbles) Get(i int) byte {
	if i&1 == 0 {
		return n[i>>1] & 0xF
	}
	return n[i>>1] >> 4
}

// Set записывает значение по индексу блока
func (n Nibbles) Set(i int, level byte) {
	level &= 0xF
	if i&1 == 0 {
		n[i>>1] = n[i>>1]&0xF0 | level
	} else {
		n[i>>1] = n[i>>1]&0x0F | level<<4
	}
}
