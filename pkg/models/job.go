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

// Mode selects how job items are interpreted against a device.
type Mode int

const (
	// ModePull runs each job item as a read command and saves the output.
	ModePull Mode = iota
	// ModePush sends all job items as one configuration batch.
	ModePush
	// ModeSaveOnly issues only a save-configuration action.
	ModeSaveOnly
)

func (m Mode) String() string {
	switch m {
	case ModePull:
		return "pull"
	case ModePush:
		return "push"
	case ModeSaveOnly:
		return "save-only"
	default:
		return "unknown"
	}
}

// JobSpec is the shared, read-only description of the work to perform on each
// device. It is built once per run and passed by value into every worker.
type JobSpec struct {
	Mode       Mode     `json:"mode"`
	Items      []string `json:"items"`
	OutputRoot string   `json:"output_root"`

	// FlatOutput selects the queue-based pipeline: artifacts are written into
	// OutputRoot under device-prefixed names and relocated by the organizer.
	FlatOutput bool `json:"flat_output"`
}

// ResultEvent reports one artifact produced by a device job. The zero value is
// reserved as the stream sentinel.
type ResultEvent struct {
	DeviceID     string `json:"device_id"`
	ArtifactPath string `json:"artifact_path"`
}

// SentinelResult returns the distinguished event signaling that no more
// results will arrive. It is emitted exactly once, by the dispatcher.
func SentinelResult() ResultEvent {
	return ResultEvent{}
}

// IsSentinel reports whether the event is the end-of-stream sentinel.
func (e ResultEvent) IsSentinel() bool {
	return e.DeviceID == "" && e.ArtifactPath == ""
}
