package bot

import "regexp"

// wordPattern matches whole tokens including non-ASCII letters, so boundary
// detection works on words like VENUSHÜGEL.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

const blocklistReplacement = "vegan"

var blockedTokens = map[string]struct{}{
	"VAGINA":     {},
	"VULVA":      {},
	"VENUSHÜGEL": {},
	"ABCDEFG":    {},
}

// censor replaces exact blocklisted tokens in the transcript. Matching is
// case-sensitive and word-boundary aware; substrings of longer words are left
// alone.
func censor(text string) string {
	return wordPattern.ReplaceAllStringFunc(text, func(word string) string {
		if _, blocked := blockedTokens[word]; blocked {
			return blocklistReplacement
		}
		return word
	})
}
