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

package config

import (
	"testing"
	"time"

	"github.com/slicedproxy/sliced/internal/timeout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default(8080, 8053)
	require.NoError(t, c.Validate())
	assert.Equal(t, time.Second, c.UpdateInterval())
	assert.Equal(t, time.Second, c.HealthCheckInterval())
	assert.Equal(t, time.Second, c.RebalanceInterval())
	assert.Equal(t, 10*time.Second, c.GracePeriodDuration())
}

func TestValidateRejectsBadPorts(t *testing.T) {
	c := Default(0, 8053)
	assert.Error(t, c.Validate())

	c = Default(8080, 70000)
	assert.Error(t, c.Validate())
}

func TestDisabledSettingMeansNoDeadline(t *testing.T) {
	c := Default(8080, 8053)
	c.ConnectTimeout = timeout.DisabledSetting()
	assert.Equal(t, time.Duration(0), c.ConnectDeadline())
}

func TestRebalanceIntervalFallsBackToHealthCheck(t *testing.T) {
	c := Default(8080, 8053)
	c.HealthCheckFrequency = timeout.DurationSetting(5 * time.Second)
	assert.Equal(t, 5*time.Second, c.RebalanceInterval())
}
