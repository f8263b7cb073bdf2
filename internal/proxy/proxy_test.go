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

package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slicedproxy/sliced/internal/assignment"
	"github.com/slicedproxy/sliced/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestWriteRouterErrorIs502(t *testing.T) {
	rt := router.New() // empty backend set: every route fails NoUpstream

	mux := http.NewServeMux()
	s := &Server{Router: rt, Log: testLogger()}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, err := s.Router.Route([]byte(r.Header.Get(userHeader)))
		require.Error(t, err)
		s.writeRouterError(w, r, err)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServerForwardsToRoutedBackend(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello from upstream"))
	}))
	defer upstream.Close()

	addr := strings.TrimPrefix(upstream.URL, "http://")
	sa, err := assignment.Build([]string{addr})
	require.NoError(t, err)

	rt := router.New()
	rt.Publish(sa.ToBackends())

	s := &Server{Addr: "127.0.0.1", Port: 18099, Router: rt, Log: testLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	var body string
	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:18099/", nil)
		req.Header.Set("X-User", "alice")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, time.Second, 50*time.Millisecond)

	assert.Equal(t, "hello from upstream", body)
}
