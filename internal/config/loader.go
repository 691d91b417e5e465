package config

import (
	"context"

	"github.com/ahrav/scand/internal/domain/wifi"
)

// Loader provides the scan control policy. It abstracts the policy source so
// files, the settings store or a remote service can supply it.
type Loader interface {
	// Load retrieves and parses the policy from the underlying source.
	Load(ctx context.Context) (wifi.ScanControlInfo, error)
}
