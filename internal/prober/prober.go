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

// Package prober implements the health/telemetry Prober: periodic HTTP
// checks against every backend, parsing a Usage report from the
// response body and flipping each backend's health on a
// consecutive-threshold basis.
package prober

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slicedproxy/sliced/internal/assignment"
)

// maxBodyBytes bounds how much of a worker's health response body the
// Prober will read, per spec.md §4.5.
const maxBodyBytes = 1 << 20 // 1 MiB

// Prober probes every backend in a BackendSet for liveness and load.
type Prober struct {
	Log              logrus.FieldLogger
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	SuccessThreshold int
	FailureThreshold int

	client *http.Client
}

// New returns a Prober with an HTTP client whose dial and response-header
// deadlines are bound to connectTimeout; Check additionally bounds the
// overall request (including body drain) to connectTimeout+readTimeout
// whenever readTimeout is non-zero. A zero timeout sets no deadline.
func New(log logrus.FieldLogger, connectTimeout, readTimeout time.Duration, successThreshold, failureThreshold int) *Prober {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Prober{
		Log:              log,
		ConnectTimeout:   connectTimeout,
		ReadTimeout:      readTimeout,
		SuccessThreshold: successThreshold,
		FailureThreshold: failureThreshold,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           dialer.DialContext,
				ResponseHeaderTimeout: connectTimeout,
			},
		},
	}
}

// Check probes a single backend and records the result on its
// HealthStatus. It never returns an error: failures are recorded as
// ProbeFailure against that backend only, per spec.md §7.
func (p *Prober) Check(ctx context.Context, b *assignment.Backend) {
	if p.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.ConnectTimeout+p.ReadTimeout)
		defer cancel()
	}

	log := p.Log.WithField("backend", b.Address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+b.Address+"/", nil)
	if err != nil {
		log.WithError(err).Warn("failed to build probe request")
		b.Health.RecordResult(false, nil, p.SuccessThreshold, p.FailureThreshold)
		return
	}
	req.Host = "sliced.local"

	resp, err := p.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("probe request failed")
		b.Health.RecordResult(false, nil, p.SuccessThreshold, p.FailureThreshold)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	var usage *assignment.Usage
	var u assignment.Usage
	if err := json.Unmarshal(body, &u); err == nil {
		usage = &u
	} else if len(body) > 0 {
		log.WithError(err).Debug("failed to parse probe telemetry body")
	}

	success := resp.StatusCode == http.StatusOK
	if !success {
		log.WithField("status", resp.StatusCode).Warn("probe returned non-200 status")
	}
	b.Health.RecordResult(success, usage, p.SuccessThreshold, p.FailureThreshold)
}

// CheckAll probes every backend in bs concurrently and waits for all
// probes to finish or ctx to be canceled.
func (p *Prober) CheckAll(ctx context.Context, bs *assignment.BackendSet) {
	if bs == nil {
		return
	}
	done := make(chan struct{}, len(bs.Backends))
	for _, b := range bs.Backends {
		b := b
		go func() {
			defer func() { done <- struct{}{} }()
			p.Check(ctx, b)
		}()
	}
	for range bs.Backends {
		<-done
	}
}
