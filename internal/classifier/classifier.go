// Package classifier turns a reading and an optional user annotation into a mental
// state classification.
package classifier

import (
	"context"

	"example.com/moodsync/internal/domain"
)

// Classifier produces a Classification for a reading. Implementations must not return
// a partial result alongside an error.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, reading domain.Reading, annotation string) (domain.Classification, error)
}
