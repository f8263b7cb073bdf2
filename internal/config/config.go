// Copyright Project Contour Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the flat, validated configuration sliced is
// bootstrapped with, built the same way the teacher assembles its own
// serve-time configuration: plain fields with sane defaults, timeout
// and frequency settings parsed through internal/timeout, and a single
// Validate entry point called once at startup.
package config

import (
	"fmt"
	"time"

	"github.com/slicedproxy/sliced/internal/timeout"
)

// Defaults matching spec.md §6's constants.
const (
	DefaultDNSHost           = "127.0.0.1"
	DefaultUpdateFrequency   = time.Second
	DefaultHealthCheckFreq   = time.Second
	DefaultConnectTimeout    = time.Second
	DefaultReadTimeout       = time.Second
	DefaultGracePeriod       = 10 * time.Second
	DefaultAdminAddr         = "127.0.0.1:8090"
	DefaultSuccessThreshold  = 1
	DefaultFailureThreshold  = 1
	DefaultSQLitePath        = "server.sqlite"
)

// Config is sliced's flat runtime configuration.
type Config struct {
	// ListenPort is the proxy's data-plane listen port.
	ListenPort int
	// DNSPort is the port the Discoverer's resolver queries on DNSHost.
	DNSPort int
	// DNSHost is the resolver address queried for the sliced.local. TXT
	// record.
	DNSHost string

	// SQLitePath is the durable AssignmentTable store; ":memory:" for
	// tests.
	SQLitePath string

	// AdminAddr is the address the /healthz and /metrics listener binds.
	AdminAddr string

	// UpdateFrequency governs how often the Discoverer resolves and
	// reconciles the worker set.
	UpdateFrequency timeout.Setting
	// HealthCheckFrequency governs how often the Prober checks every
	// backend.
	HealthCheckFrequency timeout.Setting
	// RebalanceFrequency governs how often the Rebalancer proposes
	// moves; defaults to HealthCheckFrequency's cadence when unset.
	RebalanceFrequency timeout.Setting

	// ConnectTimeout and ReadTimeout bound the Prober's HTTP probes.
	ConnectTimeout timeout.Setting
	ReadTimeout    timeout.Setting

	// GracePeriod bounds how long the proxy listener drains in-flight
	// requests during shutdown.
	GracePeriod timeout.Setting

	// SuccessThreshold and FailureThreshold are the Prober's
	// consecutive-result counts before a health flip.
	SuccessThreshold int
	FailureThreshold int
}

// Default returns a Config with every field at its spec.md §6 default,
// except ListenPort and DNSPort, which the CLI always supplies.
func Default(listenPort, dnsPort int) Config {
	return Config{
		ListenPort:            listenPort,
		DNSPort:               dnsPort,
		DNSHost:               DefaultDNSHost,
		SQLitePath:            DefaultSQLitePath,
		AdminAddr:             DefaultAdminAddr,
		UpdateFrequency:       timeout.DefaultSetting(),
		HealthCheckFrequency:  timeout.DefaultSetting(),
		RebalanceFrequency:    timeout.DefaultSetting(),
		ConnectTimeout:        timeout.DefaultSetting(),
		ReadTimeout:           timeout.DefaultSetting(),
		GracePeriod:           timeout.DefaultSetting(),
		SuccessThreshold:      DefaultSuccessThreshold,
		FailureThreshold:      DefaultFailureThreshold,
	}
}

// Validate rejects configurations that cannot be bootstrapped.
func (c Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("config: invalid listen port %d", c.ListenPort)
	}
	if c.DNSPort <= 0 || c.DNSPort > 65535 {
		return fmt.Errorf("config: invalid dns port %d", c.DNSPort)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("config: success threshold must be >= 1, got %d", c.SuccessThreshold)
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("config: failure threshold must be >= 1, got %d", c.FailureThreshold)
	}
	return nil
}

// durationOrDefault resolves a timeout.Setting to a concrete duration,
// falling back to def when the setting says "use the default", and to
// zero (meaning "no deadline") when the setting is disabled.
func durationOrDefault(s timeout.Setting, def time.Duration) time.Duration {
	switch {
	case s.IsDisabled():
		return 0
	case s.UseDefault():
		return def
	default:
		return s.Duration()
	}
}

// UpdateInterval resolves UpdateFrequency to a concrete duration.
func (c Config) UpdateInterval() time.Duration {
	return durationOrDefault(c.UpdateFrequency, DefaultUpdateFrequency)
}

// HealthCheckInterval resolves HealthCheckFrequency to a concrete
// duration.
func (c Config) HealthCheckInterval() time.Duration {
	return durationOrDefault(c.HealthCheckFrequency, DefaultHealthCheckFreq)
}

// RebalanceInterval resolves RebalanceFrequency, defaulting to the
// health-check cadence when unset.
func (c Config) RebalanceInterval() time.Duration {
	return durationOrDefault(c.RebalanceFrequency, c.HealthCheckInterval())
}

// ConnectDeadline resolves ConnectTimeout to a concrete duration.
func (c Config) ConnectDeadline() time.Duration {
	return durationOrDefault(c.ConnectTimeout, DefaultConnectTimeout)
}

// ReadDeadline resolves ReadTimeout to a concrete duration.
func (c Config) ReadDeadline() time.Duration {
	return durationOrDefault(c.ReadTimeout, DefaultReadTimeout)
}

// GracePeriodDuration resolves GracePeriod to a concrete duration.
func (c Config) GracePeriodDuration() time.Duration {
	return durationOrDefault(c.GracePeriod, DefaultGracePeriod)
}
