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

// Package proxy is the data-plane listener: it accepts HTTP/1.1
// connections, routes each request to the backend owning its slice, and
// forwards it via httputil.ReverseProxy. Connection accept, TLS, and
// upstream dial are handled by the standard library's own reverse-proxy
// machinery; spec.md §1 places the proxy transport itself out of scope
// for this implementation, so no third-party proxy framework is
// substituted in its place.
package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slicedproxy/sliced/internal/router"
)

// userHeader is the routing key header required on every request, per
// spec.md §6.
const userHeader = "X-User"

// Server is the sticky proxy's data-plane HTTP listener.
type Server struct {
	Addr        string
	Port        int
	Router      *router.Router
	Log         logrus.FieldLogger
	GracePeriod time.Duration
}

// Start fulfills the workgroup.Group AddContext contract: it serves until
// ctx is canceled, then drains in-flight requests for up to GracePeriod,
// closes any connections still open, and returns.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		key := []byte(r.Header.Get(userHeader))

		backend, err := s.Router.Route(key)
		if err != nil {
			s.writeRouterError(w, r, err)
			return
		}

		target := &url.URL{Scheme: "http", Host: backend.Address}
		rp := httputil.NewSingleHostReverseProxy(target)
		rp.ErrorHandler = s.handleProxyError
		rp.ServeHTTP(w, r)
	})

	srv := &http.Server{
		Addr:    net.JoinHostPort(s.Addr, strconv.Itoa(s.Port)),
		Handler: mux,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		grace := s.GracePeriod
		if grace <= 0 {
			grace = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.Log.WithError(err).Warn("proxy: graceful shutdown did not complete within grace period")
			_ = srv.Close()
		}
	}()

	s.Log.WithField("address", srv.Addr).Info("started proxy listener")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return err
}

// writeRouterError maps a router error to the HTTP response spec.md §7
// requires: both NoUpstream and SliceUnassigned surface as a 502 with a
// human-readable reason.
func (s *Server) writeRouterError(w http.ResponseWriter, r *http.Request, err error) {
	s.Log.WithError(err).WithField("path", r.URL.Path).Warn("proxy: no backend for request")
	http.Error(w, err.Error(), http.StatusBadGateway)
}

// handleProxyError handles failures dialing or round-tripping to the
// routed backend (connection refused, timeout, etc.), which also
// surface to the client as a 502 per spec.md §7.
func (s *Server) handleProxyError(w http.ResponseWriter, r *http.Request, err error) {
	s.Log.WithError(err).WithField("path", r.URL.Path).Warn("proxy: upstream round trip failed")
	http.Error(w, "upstream request failed", http.StatusBadGateway)
}
