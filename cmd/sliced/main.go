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

// Command sliced is the sticky, slice-aware reverse proxy and
// coordinator described by spec.md: `sliced <listen_port> <dns_port>`.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/slicedproxy/sliced/internal/assignment"
	"github.com/slicedproxy/sliced/internal/build"
	"github.com/slicedproxy/sliced/internal/config"
	"github.com/slicedproxy/sliced/internal/controlloop"
	"github.com/slicedproxy/sliced/internal/discovery"
	"github.com/slicedproxy/sliced/internal/health"
	"github.com/slicedproxy/sliced/internal/httpsvc"
	"github.com/slicedproxy/sliced/internal/metrics"
	"github.com/slicedproxy/sliced/internal/proxy"
	"github.com/slicedproxy/sliced/internal/workgroup"
)

func main() {
	log := logrus.StandardLogger()

	app := kingpin.New("sliced", "Sticky, slice-aware reverse proxy and coordinator.")
	app.HelpFlag.Short('h')

	listenPort := app.Arg("listen_port", "Port the data-plane proxy listens on.").Required().Int()
	dnsPort := app.Arg("dns_port", "Port of the DNS resolver queried for the worker fleet.").Required().Int()

	sqlitePath := app.Flag("sqlite-path", "Path to the durable assignments sqlite file.").Default(config.DefaultSQLitePath).String()
	dnsHost := app.Flag("dns-host", "Host of the DNS resolver queried for the worker fleet.").Default(config.DefaultDNSHost).String()
	adminAddr := app.Flag("admin-address", "Address the /healthz and /metrics listener binds.").Default(config.DefaultAdminAddr).String()
	debug := app.Flag("debug", "Enable debug logging.").Bool()

	args := os.Args[1:]
	kingpin.MustParse(app.Parse(args))

	log.Info(build.String())

	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Default(*listenPort, *dnsPort)
	cfg.DNSHost = *dnsHost
	cfg.SQLitePath = *sqlitePath
	cfg.AdminAddr = *adminAddr

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx := context.Background()

	table, err := assignment.OpenSQLTable(ctx, cfg.SQLitePath)
	if err != nil {
		log.WithError(err).Fatal("unable to open assignment table")
	}
	defer table.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	resolver := discovery.NewDNSResolver(net.JoinHostPort(cfg.DNSHost, strconv.Itoa(cfg.DNSPort)))

	cl := controlloop.New(cfg, table, resolver, m, log)

	var group workgroup.Group
	cl.Register(&group)

	group.AddContext(func(ctx context.Context) error {
		return (&proxy.Server{
			Addr:        "0.0.0.0",
			Port:        cfg.ListenPort,
			Router:      cl.Router,
			Log:         log.WithField("component", "proxy"),
			GracePeriod: cfg.GracePeriodDuration(),
		}).Start(ctx)
	})

	adminHost, adminPort := splitAdminAddr(cfg.AdminAddr, log)
	adminSvc := &httpsvc.Service{
		Addr:        adminHost,
		Port:        adminPort,
		FieldLogger: log.WithField("component", "admin"),
	}
	adminSvc.Handle("/healthz", health.Handler(table))
	adminSvc.Handle("/metrics", metrics.Handler(registry))
	group.AddContext(adminSvc.Start)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.WithFields(logrus.Fields{
		"listen_port": cfg.ListenPort,
		"dns_port":    cfg.DNSPort,
		"admin_addr":  cfg.AdminAddr,
	}).Info("sliced starting")

	if err := group.Run(ctx); err != nil {
		log.WithError(err).Fatal("sliced terminated with error")
	}
}

// splitAdminAddr parses a "host:port" admin address, falling back to the
// configured default on a malformed flag value rather than failing
// startup over a cosmetic misconfiguration.
func splitAdminAddr(addr string, log logrus.FieldLogger) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.WithError(err).WithField("admin-address", addr).Warn("invalid admin address, falling back to default")
		host, portStr, _ = net.SplitHostPort(config.DefaultAdminAddr)
	}
	port, err := net.LookupPort("tcp", portStr)
	if err != nil {
		log.WithError(err).WithField("admin-address", addr).Warn("invalid admin port, falling back to default")
		_, portStr, _ = net.SplitHostPort(config.DefaultAdminAddr)
		port, _ = net.LookupPort("tcp", portStr)
	}
	return host, port
}
