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

package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/carverauto/netrun/pkg/models"
)

const (
	defaultOrganizerPoll = 500 * time.Millisecond

	// organizerIdleLimit is the number of consecutive empty polls, with all
	// producers finished, after which the organizer treats the pipeline as
	// hung and exits.
	organizerIdleLimit = 16

	// organizerErrorLimit is the number of consecutive non-empty-queue
	// errors tolerated before the organizer gives up.
	organizerErrorLimit = 3
)

// Organizer consumes result events and relocates artifacts from the shared
// run root into per-device directories. It runs concurrently with the
// dispatcher and terminates on the stream sentinel, or on its liveness
// fail-safes.
type Organizer struct {
	results       <-chan models.ResultEvent
	outputRoot    string
	logs          chan<- models.LogRecord
	pollTimeout   time.Duration
	producersDone atomic.Bool
	done          chan struct{}
}

// NewOrganizer creates an organizer over the given result stream.
func NewOrganizer(results <-chan models.ResultEvent, outputRoot string, logs chan<- models.LogRecord) *Organizer {
	return &Organizer{
		results:     results,
		outputRoot:  outputRoot,
		logs:        logs,
		pollTimeout: defaultOrganizerPoll,
		done:        make(chan struct{}),
	}
}

// Start launches the consumer loop.
func (o *Organizer) Start() {
	go o.run()
}

// ProducersDone tells the organizer that the dispatcher has finished
// submitting and joining all jobs, arming the abandoned-pipeline fail-safe.
func (o *Organizer) ProducersDone() {
	o.producersDone.Store(true)
}

// Wait blocks until the organizer loop has exited.
func (o *Organizer) Wait() {
	<-o.done
}

func (o *Organizer) run() {
	defer close(o.done)

	var idlePolls, consecutiveErrors int

	timer := time.NewTimer(o.pollTimeout)
	defer timer.Stop()

	for {
		select {
		case event := <-o.results:
			idlePolls = 0

			if event.IsSentinel() {
				o.log(models.LevelDebug, "organizer: sentinel received, stopping")
				return
			}

			if err := o.place(event); err != nil {
				consecutiveErrors++

				o.log(models.LevelWarning, fmt.Sprintf("error organizing %s: %v", event.ArtifactPath, err))

				if consecutiveErrors > organizerErrorLimit {
					o.log(models.LevelCritical, "organizer: too many consecutive errors, giving up")

					go o.drain()

					return
				}
			} else {
				consecutiveErrors = 0
			}
		case <-timer.C:
			// The poll timeout keeps this loop from blocking forever, so
			// it can notice a dead pipeline even without the sentinel.
			if o.producersDone.Load() {
				idlePolls++

				if idlePolls >= organizerIdleLimit {
					o.log(models.LevelCritical, "organizer: result stream abandoned, exiting")

					go o.drain()

					return
				}
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		timer.Reset(o.pollTimeout)
	}
}

// drain keeps consuming events after a fail-safe exit so producers and the
// dispatcher's sentinel send never block on a dead consumer.
func (o *Organizer) drain() {
	for event := range o.results {
		if event.IsSentinel() {
			return
		}
	}
}

// place moves one artifact into its per-device directory, stripping the
// device-identifier prefix from the filename.
func (o *Organizer) place(event models.ResultEvent) error {
	filename := filepath.Base(event.ArtifactPath)
	destination := strings.TrimPrefix(filename, event.DeviceID+"_")

	deviceDir := filepath.Join(o.outputRoot, event.DeviceID)
	if err := os.MkdirAll(deviceDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", deviceDir, err)
	}

	if err := os.Rename(event.ArtifactPath, filepath.Join(deviceDir, destination)); err != nil {
		return fmt.Errorf("moving %s: %w", filename, err)
	}

	o.log(models.LevelDebug, fmt.Sprintf("organized %s into %s", destination, event.DeviceID))

	return nil
}

func (o *Organizer) log(level models.LogLevel, message string) {
	if o.logs == nil {
		return
	}

	o.logs <- models.LogRecord{Level: level, Source: "organizer", Message: message}
}
