package convert

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// reNumeric matches what monitoring tools and the ServerQuery protocol consider a plain number:
// optional surrounding whitespace, optional sign, decimal digits with optional fraction and exponent.
var reNumeric = regexp.MustCompile(`^\s*[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?\s*$`)

// IsNumeric returns true if the string is a plain decimal number.
// Hexadecimal notation, Inf, NaN and digit separators are rejected.
func IsNumeric(str string) bool {
	return reNumeric.MatchString(str)
}

// Float64E converts anything into a float64
// errors will be returned
func Float64E(raw interface{}) (float64, error) {
	switch val := raw.(type) {
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case int:
		return float64(val), nil
	default:
		str := fmt.Sprintf("%v", val)
		if !IsNumeric(str) {
			return 0, fmt.Errorf("cannot parse float64 value from %v (%T)", raw, raw)
		}
		num, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse float64 value from %v (%T)", raw, raw)
		}

		return num, nil
	}
}

// Int64E converts anything into a int64, numeric strings with fractions
// are truncated towards zero.
// errors will be returned
func Int64E(raw interface{}) (int64, error) {
	switch val := raw.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	default:
		str := strings.TrimSpace(fmt.Sprintf("%v", val))
		num, err := strconv.ParseInt(str, 10, 64)
		if err == nil {
			return num, nil
		}
		fNum, err := Float64E(str)
		if err != nil {
			return 0, fmt.Errorf("cannot parse int64 value from %v (%T)", raw, raw)
		}
		// float64(math.MaxInt64) is 2^63 and already out of range
		if fNum < math.MinInt64 || fNum >= math.MaxInt64 {
			return 0, fmt.Errorf("int64 value out of range: %v", raw)
		}

		return int64(fNum), nil
	}
}

// Num2String converts any number into a string
// errors will fall back to empty string
func Num2String(raw interface{}) string {
	s, _ := Num2StringE(raw)

	return s
}

// Num2StringE converts any number into a string, floats without fraction
// are printed as integer.
// errors will be returned
func Num2StringE(raw interface{}) (string, error) {
	switch num := raw.(type) {
	case float64:
		if strconv.FormatFloat(num, 'f', -1, 64) != fmt.Sprintf("%d", int64(num)) {
			return strconv.FormatFloat(num, 'f', -1, 64), nil
		}

		return fmt.Sprintf("%d", int64(num)), nil
	case int64:
		return fmt.Sprintf("%d", num), nil
	case int:
		return fmt.Sprintf("%d", num), nil
	default:
		fNum, err := Float64E(raw)
		if err != nil {
			return "", fmt.Errorf("cannot convert %v (%T) into string", raw, raw)
		}

		return Num2StringE(fNum)
	}
}
