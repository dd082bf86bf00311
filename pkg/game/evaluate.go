// Package game holds the pure rules of a trivia duel, independent of
// transport and storage.
package game

import (
	"fmt"
	"math"
)

// IsCorrect reports whether a raw submitted answer denotes the round's
// correct option. The client protocol does not constrain answers to one
// encoding, so three forms are treated as equivalent:
//
//   - a 1-based number equal to the correct index (JSON numbers arrive as
//     float64 and must be integral)
//   - the symbolic key "option<N>" for the correct index
//   - the literal text of the correct option
//
// Any other value is incorrect. This function is the single place to
// extend if new encodings are ever introduced.
func IsCorrect(raw any, correctIndex int, correctText string) bool {
	switch v := raw.(type) {
	case float64:
		return v == math.Trunc(v) && int(v) == correctIndex
	case int:
		return v == correctIndex
	case int64:
		return v == int64(correctIndex)
	case string:
		if v == fmt.Sprintf("option%d", correctIndex) {
			return true
		}
		return v == correctText
	default:
		return false
	}
}
