// Package delivery defines the contract every transport front end fulfils.
package delivery

import "context"

// Delivery is a running transport surface, such as the HTTP server.
type Delivery interface {
	// Serve blocks serving requests until the delivery is shut down.
	Serve(ctx context.Context) error
}
