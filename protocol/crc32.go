package protocol

// crc32Table is the MSB-first table for polynomial 0x04C11DB7
var crc32Table = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04C11DB7
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC32 is the running checksum over 16-bit words used by compressed
// exchange frames. It starts at 0xFFFFFFFF and has no final xor.
type CRC32 struct {
	sum uint32
}

// NewCRC32 returns a freshly seeded checksum
func NewCRC32() *CRC32 {
	return &CRC32{sum: 0xFFFFFFFF}
}

// Reset reseeds the checksum
func (c *CRC32) Reset() {
	c.sum = 0xFFFFFFFF
}

// Add8 feeds one byte
func (c *CRC32) Add8(b byte) {
	c.sum = c.sum<<8 ^ crc32Table[byte(c.sum>>24)^b]
}

// Add16 feeds a word high byte first
func (c *CRC32) Add16(w uint16) {
	c.Add8(byte(w >> 8))
	c.Add8(byte(w))
}

// Sum returns the current checksum
func (c *CRC32) Sum() uint32 {
	return c.sum
}

// ChecksumWords computes the frame checksum of a word sequence
func ChecksumWords(words []uint16) uint32 {
	c := NewCRC32()
	for _, w := range words {
		c.Add16(w)
	}
	return c.Sum()
}
