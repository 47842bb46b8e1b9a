package utils

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var encoding = sync.OnceValues(func() (*tiktoken.Tiktoken, error) {
	return tiktoken.EncodingForModel("gpt-4-0613")
})

// NumTokens estimates the prompt size of text. The estimate uses an OpenAI
// encoding, so it is approximate for other vendors.
func NumTokens(text string) (int, error) {
	tkm, err := encoding()
	if err != nil {
		return 0, err
	}
	return len(tkm.Encode(text, nil, nil)), nil
}
