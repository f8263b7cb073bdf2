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

// Package discovery implements the Discoverer: periodic TXT-record
// resolution of the worker fleet, reconciled against the durable
// AssignmentTable via assignment.SliceAssignments.
package discovery

import (
	"context"
	"strings"

	"github.com/miekg/dns"
)

// dnsRecordName is the TXT name queried for the worker fleet, per
// spec.md §4.4 and §6.
const dnsRecordName = "sliced.local."

// Resolver resolves the authoritative worker list. Each returned string
// is a raw "address:port" literal, matching spec.md §6's TXT answer
// format.
type Resolver interface {
	ResolveTXT(ctx context.Context) ([]string, error)
}

// DNSResolver resolves dnsRecordName against a configured nameserver
// using github.com/miekg/dns, matching spec.md §6's "custom resolver
// pointed at 127.0.0.1:<dns_port>".
type DNSResolver struct {
	// Addr is the nameserver address, e.g. "127.0.0.1:8053".
	Addr string
	// Net is the network miekg/dns dials, "udp" unless set.
	Net string
}

// NewDNSResolver returns a DNSResolver querying the given nameserver
// address over UDP.
func NewDNSResolver(addr string) *DNSResolver {
	return &DNSResolver{Addr: addr, Net: "udp"}
}

func (r *DNSResolver) ResolveTXT(ctx context.Context) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dnsRecordName, dns.TypeTXT)

	network := r.Net
	if network == "" {
		network = "udp"
	}
	client := &dns.Client{Net: network}

	resp, _, err := client.ExchangeContext(ctx, m, r.Addr)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		out = append(out, strings.Join(txt.Txt, ""))
	}
	return out, nil
}
