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

package assignment

import "errors"

// ErrNoEligibleWorkers is returned by Build/Update when the candidate
// server set contains no IPv4 addresses, so the Ketama ring would be
// empty.
var ErrNoEligibleWorkers = errors.New("assignment: no eligible (IPv4) workers")

// ErrStoreUnavailable is returned by a Table implementation when the
// durable record cannot be read or written.
var ErrStoreUnavailable = errors.New("assignment: store unavailable")

// ErrUnknownAddress is returned by Apply when a proposed move references
// an address not present in the current server set.
var ErrUnknownAddress = errors.New("assignment: move references unknown address")
