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

// StatusCode identifies the outcome of the most recent reconciliation step.
type StatusCode int

const (
	// StatusOK means the last resolution succeeded.
	StatusOK StatusCode = iota

	// StatusResolutionError means the last resolution failed. The
	// previously known endpoint set is left untouched, since the failure
	// is presumed transient.
	StatusResolutionError

	// StatusStopped means the change sink has been closed by its consumer
	// and the reconciliation loop has exited. It is terminal.
	StatusStopped
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusResolutionError:
		return "resolution error"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("StatusCode(%d)", int(c))
	}
}

// Status is the latest reconciliation status. It is a value type: two
// statuses compare equal when their code and details match.
type Status struct {
	Code StatusCode

	// Details holds the human-readable cause when Code is
	// StatusResolutionError, and is empty otherwise.
	Details string
}

func (s Status) String() string {
	if s.Code == StatusResolutionError && s.Details != "" {
		return fmt.Sprintf("%s: %s", s.Code, s.Details)
	}
	return s.Code.String()
}

func resolutionError(err error) Status {
	return Status{Code: StatusResolutionError, Details: err.Error()}
}
