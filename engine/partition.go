package engine

import (
	"fmt"

	"github.com/use-agent/charitybot/models"
)

// Partition splits ids into exactly n contiguous chunks of max(1, len/n)
// identifiers each; the last chunk also takes the remainder. When there are
// fewer identifiers than chunks the trailing chunks are empty.
//
// Concatenating the chunks in order yields ids again.
func Partition(ids []string, n int) ([][]string, error) {
	if n < 1 {
		return nil, models.NewExtractError(models.ErrCodeInvalidInput,
			fmt.Sprintf("worker count must be at least 1, got %d", n), nil)
	}

	m := len(ids)
	size := max(1, m/n)
	chunks := make([][]string, n)
	for i := range n {
		start := min(i*size, m)
		end := min(start+size, m)
		if i == n-1 {
			end = m
		}
		// Full slice expression: a worker appending to its chunk must not
		// clobber the next one.
		chunks[i] = ids[start:end:end]
	}
	return chunks, nil
}
