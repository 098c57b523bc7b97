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

// Package runner executes one device's job against a session capability.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/netrun/pkg/models"
	"github.com/carverauto/netrun/pkg/session"
)

const configsetFilename = "configset"

// Runner executes jobs for individual devices. The job spec is built once per run
// and shared read-only across all invocations.
type Runner struct {
	Dialer session.Dialer
	Spec   models.JobSpec

	// JobfilePath is read per invocation when Spec.Items is nil (preload
	// disabled).
	JobfilePath string

	// PromptDelimiter marks the end of the device prompt, default "#".
	PromptDelimiter string

	// Logs receives diagnostic records for the logging funnel.
	Logs chan<- models.LogRecord

	// Results receives one event per artifact in flat-output mode; nil
	// otherwise.
	Results chan<- models.ResultEvent
}

// Run executes the job for one device. Device-level failures are contained
// here: they are logged and never propagate to the dispatcher.
func (r *Runner) Run(ctx context.Context, record models.DeviceRecord) {
	host := record.Host()

	r.log(models.LevelWarning, fmt.Sprintf("running - %s", host))

	if err := r.runDevice(ctx, record); err != nil {
		r.log(models.LevelCritical, fmt.Sprintf("job failed for %s: %v", host, err))
	}

	r.log(models.LevelWarning, fmt.Sprintf("finished - %s", host))
}

func (r *Runner) runDevice(ctx context.Context, record models.DeviceRecord) error {
	host := record.Host()

	sess, err := r.Dialer.Dial(ctx, record)
	if err != nil {
		// Connectivity and auth failures are expected device variance:
		// log and end this job without affecting the rest of the fleet.
		var authErr *session.AuthError

		var timeoutErr *session.TimeoutError

		switch {
		case errors.As(err, &authErr), errors.As(err, &timeoutErr):
			r.log(models.LevelCritical, fmt.Sprintf("session error for %s: %v", host, err))
			return nil
		default:
			r.log(models.LevelCritical, fmt.Sprintf("connection error for %s: %v", host, err))
			return nil
		}
	}

	defer func() {
		if cerr := sess.Close(); cerr != nil {
			r.log(models.LevelDebug, fmt.Sprintf("closing session for %s: %v", host, cerr))
		}
	}()

	// A non-privileged session is useless for this command set, so
	// escalation failure is fatal for this device.
	if err := sess.EscalatePrivilege(ctx); err != nil {
		return err
	}

	delimiter := r.PromptDelimiter
	if delimiter == "" {
		delimiter = session.DefaultPromptDelimiter
	}

	deviceID := DeviceID(sess.CurrentPrompt(), delimiter)

	r.log(models.LevelDebug, fmt.Sprintf("run: found device id %s for %s", deviceID, host))

	items, err := r.items()
	if err != nil {
		return err
	}

	switch r.Spec.Mode {
	case models.ModePull:
		return r.pull(ctx, sess, deviceID, items)
	case models.ModePush:
		return r.push(ctx, sess, deviceID, items)
	case models.ModeSaveOnly:
		if err := sess.SaveConfiguration(ctx); err != nil {
			return err
		}

		r.log(models.LevelWarning, fmt.Sprintf("saved configuration for %s", host))

		return nil
	default:
		return fmt.Errorf("unknown mode %v", r.Spec.Mode)
	}
}

// items returns the preloaded job items or re-reads the jobfile when
// preloading is disabled.
func (r *Runner) items() ([]string, error) {
	if r.Spec.Items != nil {
		return r.Spec.Items, nil
	}

	return LoadJobFile(r.JobfilePath)
}

// pull runs each item as a read command and writes one file per item.
// Best-effort fan-out: a failed write is logged and skipped, remaining items
// still run.
func (r *Runner) pull(ctx context.Context, sess session.Session, deviceID string, items []string) error {
	for _, item := range items {
		name := SanitizeFilename(item) + ".txt"

		r.log(models.LevelDebug, fmt.Sprintf("run: got filename %s for %s", name, deviceID))

		response, err := sess.RunReadCommand(ctx, item)
		if err != nil {
			return fmt.Errorf("running %q: %w", item, err)
		}

		path, err := r.artifactPath(deviceID, name)
		if err != nil {
			r.log(models.LevelWarning, fmt.Sprintf("preparing directory for %s: %v", deviceID, err))
			continue
		}

		if err := os.WriteFile(path, []byte(response), 0o644); err != nil {
			r.log(models.LevelWarning, fmt.Sprintf("error writing %s: %v", path, err))
			continue
		}

		r.reportArtifact(deviceID, path)
	}

	return nil
}

// push sends all items as one configuration batch. The save-configuration
// action runs regardless of outcome: losing a config save on a push attempt
// is worse than a partial write. A timeout surfaces as device-fatal after the
// save has been attempted.
func (r *Runner) push(ctx context.Context, sess session.Session, deviceID string, items []string) (err error) {
	defer func() {
		if serr := sess.SaveConfiguration(ctx); serr != nil {
			r.log(models.LevelCritical, fmt.Sprintf("saving configuration on %s: %v", deviceID, serr))

			if err == nil {
				err = serr
			}
		}
	}()

	name := configsetFilename + ".txt"

	r.log(models.LevelDebug, fmt.Sprintf("run: got filename %s for %s", name, deviceID))

	response, err := sess.RunConfigBatch(ctx, items)
	if err != nil {
		return fmt.Errorf("pushing configuration: %w", err)
	}

	path, err := r.artifactPath(deviceID, name)
	if err != nil {
		r.log(models.LevelCritical, fmt.Sprintf("preparing directory for %s: %v", deviceID, err))
		return nil
	}

	if err := os.WriteFile(path, []byte(response), 0o644); err != nil {
		r.log(models.LevelCritical, fmt.Sprintf("error writing %s: %v", path, err))
		return nil
	}

	r.reportArtifact(deviceID, path)

	return nil
}

// artifactPath resolves where an artifact lands. Default layout is a
// per-device directory created on demand; flat-output mode keeps everything
// in the shared run root under a device-prefixed name for the organizer.
func (r *Runner) artifactPath(deviceID, name string) (string, error) {
	if r.Spec.FlatOutput {
		return filepath.Join(r.Spec.OutputRoot, deviceID+"_"+name), nil
	}

	dir := filepath.Join(r.Spec.OutputRoot, deviceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	return filepath.Join(dir, name), nil
}

func (r *Runner) reportArtifact(deviceID, path string) {
	if r.Results == nil || !r.Spec.FlatOutput {
		return
	}

	r.Results <- models.ResultEvent{DeviceID: deviceID, ArtifactPath: path}
}

func (r *Runner) log(level models.LogLevel, message string) {
	if r.Logs == nil {
		return
	}

	r.Logs <- models.LogRecord{Level: level, Source: "runner", Message: message}
}
