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

// Package build holds version metadata stamped in at build time via
// -ldflags, and exposes it to the CLI and to the metrics subsystem.
package build

import (
	"gopkg.in/yaml.v2"
)

// Info is the build metadata for a sliced binary.
type Info struct {
	Branch  string `yaml:"branch,omitempty"`
	Sha     string `yaml:"sha,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// Branch is the git branch this binary was built from, set via -ldflags.
var Branch string

// Sha is the git commit this binary was built from, set via -ldflags.
var Sha string

// Version is the release version, set via -ldflags. Defaults to "devel".
var Version = "devel"

// String renders the build metadata as YAML; cmd/sliced logs it at startup.
func String() string {
	out, err := yaml.Marshal(&Info{Branch, Sha, Version})
	if err != nil {
		panic(err)
	}
	return string(out)
}
