package utils

import (
	"fmt"
	"log/slog"
)

// Closer is an interface for types that have a Close() method.
type Closer interface {
	Close() error
}

// CloseAndLog closes closer and logs a failure with the closer's type, for
// defer statements where the error has nowhere to go.
//
//	defer utils.CloseAndLog(rows)
func CloseAndLog(closer Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Error("deferred close failed", "closer", fmt.Sprintf("%T", closer), "error", err)
	}
}
