package classifier

import (
	"github.com/hbollon/go-edlib"
)

// Scorer rates how well alias appears in text on a 0-100 scale
type Scorer func(alias, text string) float64

// Ratio is the normalized indel similarity of a and b: 100 * 2*LCS / (|a|+|b|)
func Ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la+lb == 0 {
		return 100
	}
	return 200 * float64(edlib.LCS(a, b)) / float64(la+lb)
}

// PartialRatio is the best Ratio between the shorter string and any
// equally long window of the longer one. Windows may hang over either end of
// the longer string, so a near-match at the start or end still scores.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		if len(long) == 0 {
			return 100
		}
		return 0
	}

	needle := string(short)
	best := 0.0
	for start := 1 - len(short); start < len(long); start++ {
		lo, hi := start, start+len(short)
		if lo < 0 {
			lo = 0
		}
		if hi > len(long) {
			hi = len(long)
		}
		if score := Ratio(needle, string(long[lo:hi])); score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}
