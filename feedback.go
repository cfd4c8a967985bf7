package main

// targetLength is the fixed width of targets and guesses.
const targetLength = 5

// matchCount returns the number of positions at which guess and target
// hold the same digit. Only exact positional matches count; a digit
// present elsewhere in the target scores nothing.
//
// Both strings are assumed to have already passed validDigits.
func matchCount(guess, target string) int {
	matches := 0
	for i := 0; i < targetLength && i < len(guess) && i < len(target); i++ {
		if guess[i] == target[i] {
			matches++
		}
	}

	return matches
}

// validDigits reports whether s is exactly targetLength ASCII digits.
func validDigits(s string) bool {
	if len(s) != targetLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
