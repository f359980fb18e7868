package health

import "context"

// Pinger checks one dependency's availability.
type Pinger interface {
	Ping(ctx context.Context) error
}
