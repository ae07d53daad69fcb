// Package gather defines data-gathering jobs that fill the bar store from
// external market-data providers.
package gather

import (
	"context"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early if ctx is cancelled.
	Run(ctx context.Context) error
}
