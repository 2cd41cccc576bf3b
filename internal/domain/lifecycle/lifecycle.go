// Package lifecycle holds process lifecycle constants shared by deliveries.
package lifecycle

import "time"

// DefaultTimeout bounds graceful shutdown of deliveries and stores.
const DefaultTimeout = 15 * time.Second
