package instance

import "github.com/angelmondragon/storefront-backend/pkg/env"

// GetID names this process in logs and lock tokens. WORKER_ID is set per
// replica by the deploy manifests.
func GetID() string {
	return env.Get("WORKER_ID", "worker-0")
}
