package relay

// DefaultChunkLimit is the platform's per-message text ceiling.
const DefaultChunkLimit = 4000

// chunkText splits text into pieces of at most limit runes, preferring
// to break at a newline and then at a space inside the window. Never
// splits inside a rune.
func chunkText(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var out []string
	for len(runes) > limit {
		cut := limit
		skip := 0
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut, skip = i-1, 1
				break
			}
		}
		if skip == 0 {
			for i := limit; i > limit/2; i-- {
				if runes[i-1] == ' ' {
					cut, skip = i-1, 1
					break
				}
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut+skip:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
