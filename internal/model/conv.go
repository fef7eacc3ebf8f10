package model

// Itoa is a minimal int-to-string converter for hot-path usage.
// Avoids importing strconv to eliminate unnecessary overhead.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Ftoa formats v with prec decimal places, no scientific notation.
// Built for SVG coordinates and axis labels where v is canvas-bounded;
// not a general-purpose float formatter.
func Ftoa(v float64, prec int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	pow := int64(1)
	for i := 0; i < prec; i++ {
		pow *= 10
	}
	n := int64(v*float64(pow) + 0.5)
	s := Itoa(int(n / pow))
	if prec > 0 {
		frac := Itoa(int(n % pow))
		for len(frac) < prec {
			frac = "0" + frac
		}
		s += "." + frac
	}
	if neg && n != 0 {
		s = "-" + s
	}
	return s
}
