// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown объединяет логику корректного завершения компонентов.
type GracefulShutdown interface {
	// Shutdown drains outstanding requests, stops background loops and
	// releases device resources. When ctx expires first, outstanding
	// requests are failed instead of drained.
	Shutdown(ctx context.Context) error
}
