// Package signals fetches device and network risk signals from the
// enrichment provider for a given session correlation key.
package signals

import (
	"context"
	"errors"
)

// Common errors
var (
	// ErrNotConfigured means no provider API key is set; lookups are disabled.
	ErrNotConfigured = errors.New("signal provider not configured")
	// ErrNotFound means the provider has no event for the given key.
	ErrNotFound = errors.New("signal event not found")
)

// Bundle is the set of risk indicators the provider computed for one
// session. Every slot is optional: which detectors run depends on the
// provider-side plan, so absent slots stay nil and readers must ignore
// them.
type Bundle struct {
	// SuspectScore is the provider's aggregate suspicion score in [0,1].
	// This is the only signal that determines risk magnitude.
	SuspectScore *float64 `json:"suspect_score,omitempty"`

	Bot            *bool `json:"bot,omitempty"`
	VPN            *bool `json:"vpn,omitempty"`
	Proxy          *bool `json:"proxy,omitempty"`
	Tor            *bool `json:"tor,omitempty"`
	DatacenterIP   *bool `json:"datacenter_ip,omitempty"`
	Incognito      *bool `json:"incognito,omitempty"`
	VirtualMachine *bool `json:"virtual_machine,omitempty"`
	Tampering      *bool `json:"tampering,omitempty"`
	ClonedApp      *bool `json:"cloned_app,omitempty"`
	Emulator       *bool `json:"emulator,omitempty"`
	RootedDevice   *bool `json:"rooted_device,omitempty"`
	RapidVelocity  *bool `json:"rapid_velocity,omitempty"`
	HighActivity   *bool `json:"high_activity,omitempty"`

	// IPAddress and Country are informational extras for the dashboard.
	IPAddress string `json:"ip_address,omitempty"`
	Country   string `json:"country,omitempty"`
}

// ClientFlags are the browser-observed signals the tracking snippet
// reports alongside a visit. They are weaker than provider signals and
// only matter when enrichment is unavailable.
type ClientFlags struct {
	DevtoolsOpen bool `json:"devtools_open,omitempty"`
}

// Provider looks up the signal bundle for a session correlation key.
type Provider interface {
	GetSignals(ctx context.Context, correlationKey string) (*Bundle, error)
}
