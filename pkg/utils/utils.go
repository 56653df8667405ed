package utils

import (
	"math"
	"strconv"
)

// Round rounds val to the given number of decimal places, halves are rounded away from zero.
// The scaled value is pre-rounded to 15 significant digits first, so binary representation noise
// does not decide the direction: 2.345 -> 2.35 (and not 2.34).
func Round(val float64, precision int) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return val
	}
	if precision < 0 {
		precision = 0
	}

	pow := math.Pow(10, float64(precision))
	scaled, err := strconv.ParseFloat(strconv.FormatFloat(val*pow, 'g', 15, 64), 64)
	if err != nil {
		scaled = val * pow
	}

	res := math.Round(scaled) / pow
	short, err := strconv.ParseFloat(strconv.FormatFloat(res, 'f', precision, 64), 64)
	if err != nil {
		return res
	}

	return short
}

// Percentage returns part of total in percent, rounded to the given precision.
// total must not be zero.
func Percentage(part, total int64, precision int) float64 {
	return Round(float64(part)/float64(total)*100, precision)
}
