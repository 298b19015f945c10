package history

import (
	"context"

	"github.com/smukkama/tourist-safety/internal/models"
)

// Store keeps the most recent location sample per tourist. Get returns
// (nil, nil) when nothing has been stored for the tourist yet.
type Store interface {
	Get(ctx context.Context, touristID string) (*models.LocationSample, error)
	Put(ctx context.Context, touristID string, sample models.LocationSample) error
}
