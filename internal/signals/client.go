package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbd888/copysentry/internal/circuitbreaker"
	"github.com/mbd888/copysentry/internal/retry"
)

// ErrCircuitOpen is returned when the provider has failed repeatedly and
// lookups are being short-circuited while it recovers.
var ErrCircuitOpen = errors.New("signal provider circuit open")

const (
	breakerKey       = "signal_api"
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second

	lookupAttempts  = 2
	lookupBaseDelay = 200 * time.Millisecond
)

// Client is an HTTP Provider backed by the enrichment vendor's server
// event API. One event is stored per session correlation key.
//
// Transient failures (network errors, 5xx) are retried once; repeated
// failures trip a circuit breaker so a degraded provider cannot add
// latency to every ingest.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// NewClient creates a provider client. An empty apiKey yields a client
// whose lookups fail with ErrNotConfigured; callers degrade gracefully.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.New(breakerThreshold, breakerCooldown),
	}
}

var _ Provider = (*Client)(nil)

// GetSignals fetches the signal bundle for a correlation key.
func (c *Client) GetSignals(ctx context.Context, correlationKey string) (*Bundle, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	if !c.breaker.Allow(breakerKey) {
		return nil, ErrCircuitOpen
	}

	var (
		bundle    *Bundle
		transient bool
	)
	err := retry.Do(ctx, lookupAttempts, lookupBaseDelay, func() error {
		b, err := c.lookup(ctx, correlationKey)
		if err != nil {
			var pe *retry.PermanentError
			transient = !errors.As(err, &pe)
			return err
		}
		bundle = b
		return nil
	})
	if err != nil {
		// Permanent errors (404, bad key, malformed response) say nothing
		// about provider availability; only transport failures count.
		if transient {
			c.breaker.RecordFailure(breakerKey)
		}
		return nil, err
	}

	c.breaker.RecordSuccess(breakerKey)
	return bundle, nil
}

func (c *Client) lookup(ctx context.Context, correlationKey string) (*Bundle, error) {
	endpoint := c.baseURL + "/events/" + url.PathEscape(correlationKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build signal request: %w", err))
	}
	req.Header.Set("Auth-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signal lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, retry.Permanent(fmt.Errorf("signal lookup: provider rejected API key (status %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("signal lookup: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read signal response: %w", err)
	}

	var ev eventResponse
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode signal response: %w", err))
	}

	return ev.toBundle(), nil
}

// ----- Provider wire format -----

// boolSignal is the provider's envelope for a boolean detector. The
// data object is absent when the detector is not enabled for the plan.
type boolSignal struct {
	Data *struct {
		Result bool `json:"result"`
	} `json:"data"`
}

func (s boolSignal) value() *bool {
	if s.Data == nil {
		return nil
	}
	v := s.Data.Result
	return &v
}

type eventResponse struct {
	Products struct {
		SuspectScore struct {
			Data *struct {
				Result float64 `json:"result"`
			} `json:"data"`
		} `json:"suspectScore"`
		Botd struct {
			Data *struct {
				Bot struct {
					Result string `json:"result"`
				} `json:"bot"`
			} `json:"data"`
		} `json:"botd"`
		VPN            boolSignal `json:"vpn"`
		Proxy          boolSignal `json:"proxy"`
		Tor            boolSignal `json:"tor"`
		Incognito      boolSignal `json:"incognito"`
		VirtualMachine boolSignal `json:"virtualMachine"`
		Tampering      boolSignal `json:"tampering"`
		ClonedApp      boolSignal `json:"clonedApp"`
		Emulator       boolSignal `json:"emulator"`
		RootApps       boolSignal `json:"rootApps"`
		Velocity       boolSignal `json:"velocity"`
		HighActivity   boolSignal `json:"highActivity"`
		IPInfo         struct {
			Data *struct {
				V4 struct {
					Address    string `json:"address"`
					Datacenter *struct {
						Result bool `json:"result"`
					} `json:"datacenter"`
					Geolocation struct {
						Country struct {
							Code string `json:"code"`
						} `json:"country"`
					} `json:"geolocation"`
				} `json:"v4"`
			} `json:"data"`
		} `json:"ipInfo"`
	} `json:"products"`
}

func (ev *eventResponse) toBundle() *Bundle {
	b := &Bundle{
		VPN:            ev.Products.VPN.value(),
		Proxy:          ev.Products.Proxy.value(),
		Tor:            ev.Products.Tor.value(),
		Incognito:      ev.Products.Incognito.value(),
		VirtualMachine: ev.Products.VirtualMachine.value(),
		Tampering:      ev.Products.Tampering.value(),
		ClonedApp:      ev.Products.ClonedApp.value(),
		Emulator:       ev.Products.Emulator.value(),
		RootedDevice:   ev.Products.RootApps.value(),
		RapidVelocity:  ev.Products.Velocity.value(),
		HighActivity:   ev.Products.HighActivity.value(),
	}

	if d := ev.Products.SuspectScore.Data; d != nil {
		score := d.Result
		b.SuspectScore = &score
	}
	if d := ev.Products.Botd.Data; d != nil {
		// The bot detector reports "good" (search crawler), "bad"
		// (automation), or "notDetected". Only "bad" counts.
		bad := d.Bot.Result == "bad"
		b.Bot = &bad
	}
	if d := ev.Products.IPInfo.Data; d != nil {
		b.IPAddress = d.V4.Address
		b.Country = d.V4.Geolocation.Country.Code
		if dc := d.V4.Datacenter; dc != nil {
			v := dc.Result
			b.DatacenterIP = &v
		}
	}

	return b
}
