package cache

import "github.com/google/uuid"

// Key builders. Keeping them in one place avoids drift between the code
// that writes entries and the code that invalidates them.

// GatewayKey is the cache key for a gateway looked up by its gw_id.
func GatewayKey(gwID string) string {
	return "gateway:gwid:" + gwID
}

// PolicyKey is the cache key for a user's resolved quota policy.
func PolicyKey(userID uuid.UUID) string {
	return "policy:user:" + userID.String()
}

// PolicyPattern matches every cached policy resolution. Used when a
// policy row changes, since role-to-user mapping is not tracked per key.
const PolicyPattern = "policy:user:*"
