package chunker

import (
	"errors"

	"github.com/google/uuid"

	"ragchat/types"
)

// Split cuts text into ordered chunks of at most maxLen runes, each
// subsequent chunk starting maxLen-overlap runes after the previous one so
// the whole input is covered with no gaps. Empty input yields no chunks.
func Split(text string, maxLen, overlap int) ([]types.Chunk, error) {
	if maxLen <= 0 {
		return nil, errors.New("max length must be > 0")
	}
	if overlap < 0 || overlap >= maxLen {
		return nil, errors.New("overlap must be >= 0 and < max length")
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := maxLen - overlap
	var chunks []types.Chunk
	for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, types.Chunk{
			ID:      uuid.New(),
			Index:   idx,
			Content: string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
