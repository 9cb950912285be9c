// Package hex formats bytes and 16-bit words as hex text for the
// disassembler and diagnostic dumps.
package hex

import "strings"

var hexMap = "0123456789ABCDEF"

// FormatWord16 writes a 16-bit operand word as four hex digits.
func FormatWord16(str *strings.Builder, word uint16) {
	shift := 12
	for range 4 {
		str.WriteByte(hexMap[(word>>shift)&0xf])
		shift -= 4
	}
}

// FormatBytes writes each byte in data as two hex digits, optionally
// space separated.
func FormatBytes(str *strings.Builder, space bool, data []uint8) {
	for _, by := range data {
		str.WriteByte(hexMap[(by>>4)&0xf])
		str.WriteByte(hexMap[by&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}

// FormatByte writes a single byte as two hex digits.
func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

// FormatDigit writes the low nibble of data as one hex digit.
func FormatDigit(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[data&0xf])
}
