package risk

import (
	"math"

	"github.com/mbd888/copysentry/internal/signals"
)

// DevtoolsFallbackScore is the fixed contribution of an open developer
// tools panel when no provider score is available.
const DevtoolsFallbackScore = 20

// detectorCatalog fixes the order and severity of every boolean
// detector the provider exposes. Factors are emitted in this order so
// identical bundles always produce identical factor lists.
var detectorCatalog = []struct {
	signal   string
	severity Severity
	detail   string
	value    func(*signals.Bundle) *bool
}{
	{"bot", SeverityCritical, "Automated browser or bot detected", func(b *signals.Bundle) *bool { return b.Bot }},
	{"tor", SeverityCritical, "Connection routed through the Tor network", func(b *signals.Bundle) *bool { return b.Tor }},
	{"tampering", SeverityCritical, "Browser fingerprint tampering detected", func(b *signals.Bundle) *bool { return b.Tampering }},
	{"vpn", SeverityHigh, "VPN connection detected", func(b *signals.Bundle) *bool { return b.VPN }},
	{"proxy", SeverityHigh, "Traffic passes through a proxy", func(b *signals.Bundle) *bool { return b.Proxy }},
	{"datacenter-ip", SeverityHigh, "IP address belongs to a datacenter", func(b *signals.Bundle) *bool { return b.DatacenterIP }},
	{"virtual-machine", SeverityHigh, "Browser runs inside a virtual machine", func(b *signals.Bundle) *bool { return b.VirtualMachine }},
	{"cloned-app", SeverityHigh, "Cloned or repackaged application", func(b *signals.Bundle) *bool { return b.ClonedApp }},
	{"emulator", SeverityHigh, "Device emulator detected", func(b *signals.Bundle) *bool { return b.Emulator }},
	{"rooted-device", SeverityHigh, "Rooted or jailbroken device", func(b *signals.Bundle) *bool { return b.RootedDevice }},
	{"rapid-velocity", SeverityHigh, "Abnormally fast request rate", func(b *signals.Bundle) *bool { return b.RapidVelocity }},
	{"incognito", SeverityMedium, "Private browsing mode in use", func(b *signals.Bundle) *bool { return b.Incognito }},
	{"high-daily-activity", SeverityMedium, "Unusually high daily visit count", func(b *signals.Bundle) *bool { return b.HighActivity }},
}

// Analyze scores a visit. Pure function: identical inputs always
// produce identical output.
//
// The score comes from the provider's aggregate suspicion score alone,
// rescaled from [0,1] to a 0-100 integer. Boolean detector hits never
// change the score; they are recorded as contextual factors for
// operator visibility. When no provider score is available the score
// falls back to a fixed contribution from client-observed signals.
func Analyze(bundle *signals.Bundle, client *signals.ClientFlags) Analysis {
	score := 0
	switch {
	case bundle != nil && bundle.SuspectScore != nil:
		score = clamp(int(math.Round(*bundle.SuspectScore * 100)))
	case client != nil && client.DevtoolsOpen:
		score = DevtoolsFallbackScore
	}

	var factors []Factor
	if bundle != nil {
		for _, d := range detectorCatalog {
			if v := d.value(bundle); v != nil && *v {
				factors = append(factors, Factor{Signal: d.signal, Severity: d.severity, Detail: d.detail})
			}
		}
	}
	if client != nil && client.DevtoolsOpen {
		factors = append(factors, Factor{
			Signal:   "devtools-open",
			Severity: SeverityHigh,
			Detail:   "Developer tools open during the visit",
		})
	}

	level := LevelForScore(score)
	return Analysis{
		Score:          score,
		Level:          level,
		Factors:        factors,
		Recommendation: RecommendationForLevel(level),
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
