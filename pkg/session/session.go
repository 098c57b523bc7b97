/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package session provides remote command-line sessions to network devices.
package session

import (
	"context"
	"fmt"

	"github.com/carverauto/netrun/pkg/models"
)

// Session is an open command-line session to one device. Implementations must
// tolerate Close being called on every exit path.
type Session interface {
	// RunReadCommand executes a read command and returns the full response.
	RunReadCommand(ctx context.Context, command string) (string, error)
	// RunConfigBatch sends all lines as one configuration operation and
	// returns the combined response.
	RunConfigBatch(ctx context.Context, lines []string) (string, error)
	// EscalatePrivilege raises the session to privileged mode. Idempotent.
	EscalatePrivilege(ctx context.Context) error
	// SaveConfiguration persists the device's running configuration.
	SaveConfiguration(ctx context.Context) error
	// CurrentPrompt returns the device prompt as last observed.
	CurrentPrompt() string

	Close() error
}

// Dialer opens sessions from device records.
type Dialer interface {
	Dial(ctx context.Context, record models.DeviceRecord) (Session, error)
}

// AuthError indicates the device rejected the credentials. Contained
// per-device; never fatal to the fleet.
type AuthError struct {
	Host string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TimeoutError indicates the device did not respond in time, either during
// connection setup or while waiting for a prompt.
type TimeoutError struct {
	Host string
	Op   string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s for %s: %v", e.Op, e.Host, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
