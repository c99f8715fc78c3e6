// Package bytefmt renders byte counts in compact binary units for tables
// and mail bodies.
package bytefmt

import "strconv"

func formatHelper(bytes uint64, pow uint8, unit string) string {
	quotient := bytes >> pow
	frac := bytes & ((1 << pow) - 1)
	frac = ((frac * 10) + ((1 << pow) >> 1)) >> pow
	if frac == 10 {
		frac = 0
		quotient++
	}
	return strconv.FormatUint(quotient, 10) + "." + strconv.FormatUint(frac, 10) + unit
}

// Format converts a byte count to a human readable size like "1.5G".
func Format(byteNum uint64) string {
	switch {
	case byteNum >= 1<<40:
		return formatHelper(byteNum, 40, "T")
	case byteNum >= 1<<30:
		return formatHelper(byteNum, 30, "G")
	case byteNum >= 1<<20:
		return formatHelper(byteNum, 20, "M")
	case byteNum >= 1<<10:
		return formatHelper(byteNum, 10, "K")
	}
	return strconv.FormatUint(byteNum, 10) + "B"
}
