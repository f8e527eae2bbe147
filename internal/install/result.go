// Copyright 2025 Tom Barlow
//
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

package install

import (
	"errors"

	"github.com/tombee/alou/internal/recovery"
	"github.com/tombee/alou/internal/registry"
)

var (
	// ErrExhausted is reported once a service has used up its launch attempts
	// for this session.
	ErrExhausted = errors.New("retry limit reached")

	// ErrDiscoveryMiss is returned when no service matches a query well enough.
	ErrDiscoveryMiss = errors.New("no matching service found")

	// ErrPlaceholder marks a record with no launch command.
	ErrPlaceholder = errors.New("service has no launch command")
)

// Status is the terminal state of an installation.
type Status string

const (
	StatusRunning     Status = "running"
	StatusFailed      Status = "failed"
	StatusExhausted   Status = "exhausted"
	StatusPlaceholder Status = "placeholder"
	StatusSwitch      Status = "switch_server"
)

// Result describes how an installation ended.
type Result struct {
	ServiceID string
	Status    Status

	// Record is the record as last attempted, with any applied fixes.
	Record registry.ServiceRecord

	// Attempts counts launches made by this call.
	Attempts int

	// Tools lists the tool names of a running service.
	Tools []string

	// Fixes holds every diagnosis, in order.
	Fixes []recovery.Fix

	// SwitchKeyword is set for StatusSwitch.
	SwitchKeyword string

	// Message is advice for the user when the install did not succeed.
	Message string

	// Transient is set on StatusFailed when the last launch failure
	// classifies itself as retryable, such as a connect timeout. Running
	// the install again may succeed without a fix.
	Transient bool

	// Err is the last launch failure, or one of the sentinel errors.
	Err error
}

// OK reports whether the service is running.
func (r *Result) OK() bool {
	return r.Status == StatusRunning
}
