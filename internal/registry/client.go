package registry

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/apicatalog/internal/domain"
)

var (
	// ErrNotFound is returned when the registry has no instance for a service id.
	ErrNotFound = errors.New("service not registered")
	// ErrUnavailable is returned when the registry cannot be reached or answers with an error.
	ErrUnavailable = errors.New("registry unavailable")
)

// Client reads registered applications from the discovery backend.
type Client interface {
	// GetInstance returns one instance of serviceID, preferring an UP one.
	// It returns ErrNotFound when no instance is registered.
	GetInstance(ctx context.Context, serviceID string) (*domain.Instance, error)

	// GetApplications returns the full registry state, or only the changes since
	// the previous fetch when deltaOnly is set. Delta instances carry an ActionType.
	GetApplications(ctx context.Context, deltaOnly bool) (*domain.Applications, error)
}
