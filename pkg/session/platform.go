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

package session

// Platform describes the command conventions of one network OS family.
type Platform struct {
	// DeviceType is the canonical session type identifier carried in
	// DeviceRecord's device_type field.
	DeviceType string
	// EnableCommand escalates to privileged mode, empty when the platform
	// has no separate privileged mode.
	EnableCommand string
	// ConfigEnter and ConfigExit bracket a configuration batch.
	ConfigEnter string
	ConfigExit  string
	// SaveCommand persists the running configuration.
	SaveCommand string
	// PagingOff disables terminal paging so command output arrives whole.
	PagingOff string
}

// platforms maps reported operating systems to their session conventions.
// An OS absent from this map cannot be driven by this tool.
var platforms = map[string]Platform{
	"ios": {
		DeviceType:    "cisco_ios",
		EnableCommand: "enable",
		ConfigEnter:   "configure terminal",
		ConfigExit:    "end",
		SaveCommand:   "write memory",
		PagingOff:     "terminal length 0",
	},
	"iosxe": {
		DeviceType:    "cisco_xe",
		EnableCommand: "enable",
		ConfigEnter:   "configure terminal",
		ConfigExit:    "end",
		SaveCommand:   "write memory",
		PagingOff:     "terminal length 0",
	},
	"iosxr": {
		DeviceType:    "cisco_xr",
		EnableCommand: "enable",
		ConfigEnter:   "configure terminal",
		ConfigExit:    "end",
		SaveCommand:   "commit",
		PagingOff:     "terminal length 0",
	},
	"nxos": {
		DeviceType:    "cisco_nxos",
		EnableCommand: "enable",
		ConfigEnter:   "configure terminal",
		ConfigExit:    "end",
		SaveCommand:   "copy running-config startup-config",
		PagingOff:     "terminal length 0",
	},
	"asa": {
		DeviceType:    "cisco_asa",
		EnableCommand: "enable",
		ConfigEnter:   "configure terminal",
		ConfigExit:    "end",
		SaveCommand:   "write memory",
		PagingOff:     "terminal pager 0",
	},
	"eos": {
		DeviceType:    "arista_eos",
		EnableCommand: "enable",
		ConfigEnter:   "configure terminal",
		ConfigExit:    "end",
		SaveCommand:   "write memory",
		PagingOff:     "terminal length 0",
	},
	"junos": {
		DeviceType:  "juniper_junos",
		ConfigEnter: "configure",
		ConfigExit:  "exit configuration-mode",
		SaveCommand: "commit",
		PagingOff:   "set cli screen-length 0",
	},
	"routeros": {
		DeviceType: "mikrotik_routeros",
	},
}

// PlatformForOS returns the session conventions for a reported operating
// system, or false when the OS has no supported mapping.
func PlatformForOS(os string) (Platform, bool) {
	p, ok := platforms[os]
	return p, ok
}

// PlatformForDeviceType resolves a canonical device_type back to its platform.
func PlatformForDeviceType(deviceType string) (Platform, bool) {
	for _, p := range platforms {
		if p.DeviceType == deviceType {
			return p, true
		}
	}

	return Platform{}, false
}
