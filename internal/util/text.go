package util

const ellipsis = "..."

// Truncate cuts text to at most limit runes and appends "..." when it cut
// anything. A non-positive limit disables truncation.
func Truncate(text string, limit int) (string, bool) {
	if limit <= 0 {
		return text, false
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i] + ellipsis, true
		}
		count++
	}
	return text, false
}
