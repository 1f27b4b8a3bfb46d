// Package version orders upstream version strings the way GNU sort -V and
// dpkg do: digit runs compare by value, other runs character by character
// with letters before punctuation and '~' before everything, even the end of
// the string.
package version

// Compare returns -1, 0 or 1 as a sorts before, equal to or after b.
func Compare(a, b string) int {
	switch d := compare(a, b); {
	case d < 0:
		return -1
	case d > 0:
		return 1
	}
	return 0
}

func compare(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		// Non-digit prefix.
		for (i < len(a) && !isDigit(a[i])) || (j < len(b) && !isDigit(b[j])) {
			ca, cb := weight(at(a, i)), weight(at(b, j))
			if ca != cb {
				return ca - cb
			}
			i++
			j++
		}

		for i < len(a) && a[i] == '0' {
			i++
		}
		for j < len(b) && b[j] == '0' {
			j++
		}

		// Digit run: the longer run is the larger number, otherwise the
		// first differing digit decides.
		diff := 0
		for i < len(a) && j < len(b) && isDigit(a[i]) && isDigit(b[j]) {
			if diff == 0 {
				diff = int(a[i]) - int(b[j])
			}
			i++
			j++
		}
		if i < len(a) && isDigit(a[i]) {
			return 1
		}
		if j < len(b) && isDigit(b[j]) {
			return -1
		}
		if diff != 0 {
			return diff
		}
	}
	return 0
}

// at returns s[i], or 0 past the end of s.
func at(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

// weight ranks a non-digit byte: '~' first, then end of string and digits,
// then letters, then everything else.
func weight(c byte) int {
	switch {
	case c == '~':
		return -1
	case c == 0 || isDigit(c):
		return 0
	case isAlpha(c):
		return int(c)
	}
	return int(c) + 256
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
