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

// Package health provides the /healthz endpoint served on the admin
// listener.
package health

import (
	"context"
	"fmt"
	"net/http"
)

// Pinger is satisfied by anything that can round-trip the durable store
// backing the published assignment table. assignment.Table implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler returns a http Handler for a health endpoint. The handler reports
// healthy only if it can round-trip a request to the backing store within
// the request's context.
func Handler(p Pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := p.Ping(r.Context()); err != nil {
			msg := fmt.Sprintf("assignment table unreachable: %v", err)
			http.Error(w, msg, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
}
