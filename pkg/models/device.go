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

package models

// Canonical DeviceRecord field names. Inventory sources may carry extra
// protocol-specific fields alongside these.
const (
	FieldHost       = "host"
	FieldUsername   = "username"
	FieldPassword   = "password"
	FieldSecret     = "secret"
	FieldDeviceType = "device_type"
	FieldOS         = "os"
)

// DeviceRecord is one inventory entry with enough fields to open a session to
// a network device. Records are built once by an inventory source and treated
// as immutable afterwards.
type DeviceRecord map[string]string

// Field returns the named field and whether it is present.
func (r DeviceRecord) Field(name string) (string, bool) {
	v, ok := r[name]
	return v, ok
}

func (r DeviceRecord) Host() string       { return r[FieldHost] }
func (r DeviceRecord) Username() string   { return r[FieldUsername] }
func (r DeviceRecord) Password() string   { return r[FieldPassword] }
func (r DeviceRecord) Secret() string     { return r[FieldSecret] }
func (r DeviceRecord) DeviceType() string { return r[FieldDeviceType] }
func (r DeviceRecord) OS() string         { return r[FieldOS] }

// Clone returns an independent copy of the record.
func (r DeviceRecord) Clone() DeviceRecord {
	out := make(DeviceRecord, len(r))
	for k, v := range r {
		out[k] = v
	}

	return out
}
