// Package mrz handles the Machine Readable Zone of ICAO 9303 travel
// documents: check digits, the key seed for Basic Access Control, and
// parsing of the TD1 and TD3 zone formats.
package mrz

import "fmt"

// charValues maps each MRZ character to its check-digit value:
// '0'-'9' to 0-9, 'A'-'Z' to 10-35, the filler '<' to 0. Characters
// outside the alphabet map to -1. Check digits are recomputed over
// the BAC key seed, so a flat table keeps the lookup free of
// data-dependent branches.
var charValues = buildCharValues()

func buildCharValues() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for c := byte('0'); c <= '9'; c++ {
		t[c] = int8(c - '0')
	}
	for c := byte('A'); c <= 'Z'; c++ {
		t[c] = int8(c-'A') + 10
	}
	t['<'] = 0
	return t
}

// CheckDigit computes the ICAO 9303 check digit over s: character
// values weighted 7, 3, 1 cyclically, summed modulo 10. The result is
// returned as its ASCII digit.
func CheckDigit(s string) (byte, error) {
	weights := [3]int{7, 3, 1}
	sum, bad := 0, 0
	for i := 0; i < len(s); i++ {
		v := int(charValues[s[i]])
		bad |= v
		sum += v * weights[i%3]
	}
	if bad < 0 {
		for i := 0; i < len(s); i++ {
			if charValues[s[i]] < 0 {
				return 0, fmt.Errorf("mrz: invalid character %q: %w", s[i], ErrInvalidCharacter)
			}
		}
	}
	return byte('0' + sum%10), nil
}
