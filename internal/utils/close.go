package utils

import (
	"io"

	"github.com/MrSnakeDoc/apicatalog/internal/logger"
)

// Close closes c and ignores any error.
func Close(c io.Closer) {
	_ = c.Close()
}

// CloseLogged closes c and reports a failure at warn level.
func CloseLogged(c io.Closer, log logger.Logger, what string) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("resource", what), logger.Error(err))
	}
}
