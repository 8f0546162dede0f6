// Copyright 2024-2026 Makinami
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package autobalance

import "fmt"

// Health is a coarse view of whether calls through the channel are likely
// to succeed. It is derived from the endpoint count and the latest status
// every time it is read, and is never stored.
type Health int

const (
	// HealthOK means at least one endpoint is installed and the latest
	// resolution succeeded.
	HealthOK Health = iota

	// HealthUndetermined means the latest resolution failed but previously
	// installed endpoints remain, so calls could still succeed.
	HealthUndetermined

	// HealthBroken means no endpoints are installed. Calls cannot succeed
	// until one is detected.
	HealthBroken
)

func (h Health) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthUndetermined:
		return "undetermined"
	case HealthBroken:
		return "broken"
	default:
		return fmt.Sprintf("Health(%d)", int(h))
	}
}

// classifyHealth derives health from the two register values. It is a pure
// function: no endpoints is broken regardless of status, and with endpoints
// present only a resolution error degrades the verdict to undetermined.
func classifyHealth(endpointCount int, status Status) Health {
	switch {
	case endpointCount == 0:
		return HealthBroken
	case status.Code == StatusResolutionError:
		return HealthUndetermined
	default:
		return HealthOK
	}
}
