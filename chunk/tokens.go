package chunk

import "math"

// EstimateTokens roughly estimates the token count of text, counting CJK
// ideographs at 1.5 characters per token and everything else at 4.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	var cjk, other int
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Ceil(float64(cjk)/1.5 + float64(other)/4))
}
