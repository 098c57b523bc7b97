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
	"time"

	"github.com/carverauto/netrun/pkg/logger"
	"github.com/carverauto/netrun/pkg/models"
)

const (
	defaultFunnelBuffer  = 256
	defaultFunnelTimeout = time.Second
)

// Funnel is the single consumer that serializes concurrently-produced log
// records from all workers into one leveled output stream. It stops on the
// reserved kill record, matched by exact equality; records enqueued after the
// kill point are dropped, so the kill record must only be sent once all
// producers have stopped.
type Funnel struct {
	records     chan models.LogRecord
	logger      logger.Logger
	pollTimeout time.Duration
	done        chan struct{}
}

// NewFunnel creates a funnel draining into the given logger.
func NewFunnel(log logger.Logger) *Funnel {
	return &Funnel{
		records:     make(chan models.LogRecord, defaultFunnelBuffer),
		logger:      log,
		pollTimeout: defaultFunnelTimeout,
		done:        make(chan struct{}),
	}
}

// Records is the producer side of the funnel.
func (f *Funnel) Records() chan<- models.LogRecord {
	return f.records
}

// Start launches the consumer loop.
func (f *Funnel) Start() {
	go f.run()
}

func (f *Funnel) run() {
	defer close(f.done)

	timer := time.NewTimer(f.pollTimeout)
	defer timer.Stop()

	for {
		select {
		case record := <-f.records:
			if record == models.KillLogRecord {
				f.logger.Debug().Msg("Logging funnel stopping")
				return
			}

			f.dispatch(record)
		case <-timer.C:
			// Transient emptiness is expected while workers are busy
			// on device I/O.
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		timer.Reset(f.pollTimeout)
	}
}

func (f *Funnel) dispatch(record models.LogRecord) {
	event := f.logger.Info()

	switch record.Level {
	case models.LevelDebug:
		event = f.logger.Debug()
	case models.LevelInfo:
		event = f.logger.Info()
	case models.LevelWarning:
		event = f.logger.Warn()
	case models.LevelCritical:
		event = f.logger.Error()
	}

	event.Str("source", record.Source).Msg(record.Message)
}

// Stop sends the kill record and blocks until the consumer loop exits. Safe
// to call only after all producers have stopped.
func (f *Funnel) Stop() {
	f.records <- models.KillLogRecord
	<-f.done
}
