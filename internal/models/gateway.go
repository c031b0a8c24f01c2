package models

import (
	"time"
)

// WifiGateway represents a registered physical access point running the
// WiFiDog firmware. Trust decisions are keyed on GwID.
type WifiGateway struct {
	BaseModel

	// GwID is the firmware-supplied gateway identifier (gw_id parameter).
	GwID string `json:"gwId" db:"gw_id"`

	Name string `json:"name" db:"name"`

	// MgmtIP is the expected source IP of the gateway's backend calls
	// (/wifidog/auth, /wifidog/ping). Empty disables IP checks for this
	// gateway even when enforcement is enabled globally.
	MgmtIP string `json:"mgmtIp,omitempty" db:"mgmt_ip"`

	// MACAddress is optional; compared case-insensitively when MAC
	// enforcement is enabled.
	MACAddress string `json:"macAddress,omitempty" db:"mac_address"`

	LastSeenAt *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`

	// Meta holds free-form gateway attributes (location, default ssid).
	Meta Variables `json:"meta,omitempty" db:"meta"`
}
