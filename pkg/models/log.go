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

// LogLevel tags a LogRecord with its severity.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelCritical
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// LogRecord is one diagnostic message produced by any component and consumed
// only by the logging funnel.
type LogRecord struct {
	Level   LogLevel
	Source  string
	Message string
}

// KillLogRecord is the reserved out-of-band value that tells the logging
// funnel to stop. The funnel matches it by exact equality, so no ordinary
// record may reuse this message.
var KillLogRecord = LogRecord{Level: LevelCritical, Source: "control", Message: "NETRUN-STOP-LOGGER"}
