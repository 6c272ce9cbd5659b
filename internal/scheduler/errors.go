package scheduler

import "errors"

var (
	// ErrCatalogNotVisible means the catalog's own instance is not yet in the registry.
	ErrCatalogNotVisible = errors.New("catalog instance not visible in registry")
	// ErrMetadataMalformed means a registered instance carries unusable metadata.
	ErrMetadataMalformed = errors.New("registry metadata malformed")
)

// CannotRegisterError is the fatal bootstrap failure: the cause is not one the
// bootstrap retries on.
type CannotRegisterError struct {
	Err error
}

func (e *CannotRegisterError) Error() string {
	return "cannot initialize catalog cache: " + e.Err.Error()
}

func (e *CannotRegisterError) Unwrap() error { return e.Err }

func retryable(err error) bool {
	return errors.Is(err, ErrCatalogNotVisible) || errors.Is(err, ErrMetadataMalformed)
}
