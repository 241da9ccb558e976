package embed

import (
	"context"
	"fmt"
)

// EmbedBatched embeds texts in provider calls of at most batchSize texts and
// hands each embedded batch to store together with its offset into texts. A
// failing batch (embedding or store) is skipped and reported; later batches
// still run. The returned slice holds one error per failed batch, nil when
// every batch landed.
func EmbedBatched(
	ctx context.Context,
	provider Provider,
	texts []string,
	batchSize int,
	store func(start int, embeddings [][]float32) error,
) []error {
	total := len(texts)
	if total == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	numBatches := (total + batchSize - 1) / batchSize

	var errs []error
	for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
		if err := ctx.Err(); err != nil {
			return append(errs, err)
		}

		start := batchIdx * batchSize
		end := min(start+batchSize, total)

		embeddings, err := provider.Embed(ctx, texts[start:end])
		if err != nil {
			errs = append(errs, fmt.Errorf("batch %d/%d failed: %w", batchIdx+1, numBatches, err))
			continue
		}
		if err := store(start, embeddings); err != nil {
			errs = append(errs, fmt.Errorf("batch %d/%d failed: %w", batchIdx+1, numBatches, err))
		}
	}
	return errs
}
