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

// Package dispatch coordinates concurrent device jobs: a bounded worker pool,
// the result organizer, and the logging funnel.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/netrun/pkg/models"
	"github.com/carverauto/netrun/pkg/runner"
)

// DefaultWorkers bounds concurrency when the user gives no (or an invalid)
// worker count.
const DefaultWorkers = 10

// NormalizeWorkers parses the user-supplied worker count. Invalid or
// out-of-range input falls back to DefaultWorkers with a warning, never an
// error.
func NormalizeWorkers(raw string, logs chan<- models.LogRecord) int {
	if raw == "" {
		return DefaultWorkers
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		if logs != nil {
			logs <- models.LogRecord{
				Level:   models.LevelWarning,
				Source:  "dispatch",
				Message: fmt.Sprintf("worker count %q out of range: using default of %d", raw, DefaultWorkers),
			}
		}

		return DefaultWorkers
	}

	return n
}

// Stats summarizes one fleet run.
type Stats struct {
	RunID     string
	Submitted int
	Completed int
	Cancelled int
	Elapsed   time.Duration
}

// Dispatcher owns the worker pool lifetime and the shutdown handshake for the
// organizer and the logging funnel.
type Dispatcher struct {
	Workers   int
	Runner    *runner.Runner
	Funnel    *Funnel
	Organizer *Organizer              // nil outside the queue-based variant
	Results   chan models.ResultEvent // nil outside the queue-based variant

	sentinelOnce sync.Once
}

// Run submits one job per device record in inventory order, with at most
// Workers jobs in flight. Completion order is unconstrained. On context
// cancellation, not-yet-started submissions are dropped and in-flight jobs
// are allowed to finish; the dispatcher then blocks without a time limit on
// the remainder.
func (d *Dispatcher) Run(ctx context.Context, records []models.DeviceRecord) Stats {
	start := time.Now()

	stats := Stats{RunID: uuid.New().String()}

	d.log(models.LevelInfo, fmt.Sprintf("run %s: %d devices, %d workers", stats.RunID, len(records), d.Workers))

	jobs := make(chan models.DeviceRecord)

	var completed atomic.Int64

	var wg sync.WaitGroup

	// In-flight jobs survive an interrupt: workers get a context detached
	// from the cancellation signal.
	jobCtx := context.WithoutCancel(ctx)

	for i := 0; i < d.Workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for record := range jobs {
				d.Runner.Run(jobCtx, record)
				completed.Add(1)
			}
		}()
	}

submit:
	for _, record := range records {
		select {
		case jobs <- record:
			stats.Submitted++
		case <-ctx.Done():
			stats.Cancelled = len(records) - stats.Submitted

			d.log(models.LevelCritical, "jobs cancelled, please wait for remaining jobs to finish")

			break submit
		}
	}

	close(jobs)
	wg.Wait()

	stats.Completed = int(completed.Load())
	stats.Elapsed = time.Since(start)

	return stats
}

// Shutdown performs the consumer handshake: the result sentinel is emitted
// exactly once, only now that every submission has resolved; the organizer is
// drained before the funnel, because the organizer logs through it; the
// funnel kill record goes last.
func (d *Dispatcher) Shutdown(stats Stats) {
	if d.Results != nil {
		d.sentinelOnce.Do(func() {
			if d.Organizer != nil {
				d.Organizer.ProducersDone()
			}

			d.Results <- models.SentinelResult()
		})
	}

	if d.Organizer != nil {
		d.Organizer.Wait()
	}

	d.log(models.LevelWarning, fmt.Sprintf("time elapsed: %.2fs", stats.Elapsed.Seconds()))

	if d.Funnel != nil {
		d.Funnel.Stop()
	}
}

func (d *Dispatcher) log(level models.LogLevel, message string) {
	if d.Funnel == nil {
		return
	}

	d.Funnel.Records() <- models.LogRecord{Level: level, Source: "dispatch", Message: message}
}
