package crc16

// Checksum computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF, no
// reflection, no final XOR).
func Checksum(data []byte) uint16 {
	return Update(0xFFFF, data)
}

// Update continues a running CRC from crc over data. Checksum(data) is
// Update(0xFFFF, data).
func Update(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

var crcTable = func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if (crc & 0x8000) != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()
