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

package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netrun/pkg/models"
	"github.com/carverauto/netrun/pkg/session"
)

type fakeSession struct {
	prompt string

	readCommands  []string
	configBatches [][]string
	escalations   int
	saves         int
	closed        bool

	readErr     error
	batchErr    error
	escalateErr error
	saveErr     error
}

func (s *fakeSession) RunReadCommand(_ context.Context, command string) (string, error) {
	if s.readErr != nil {
		return "", s.readErr
	}

	s.readCommands = append(s.readCommands, command)

	return "output of " + command + "\n", nil
}

func (s *fakeSession) RunConfigBatch(_ context.Context, lines []string) (string, error) {
	if s.batchErr != nil {
		return "", s.batchErr
	}

	s.configBatches = append(s.configBatches, lines)

	return "applied\n", nil
}

func (s *fakeSession) EscalatePrivilege(_ context.Context) error {
	if s.escalateErr != nil {
		return s.escalateErr
	}

	s.escalations++

	return nil
}

func (s *fakeSession) SaveConfiguration(_ context.Context) error {
	s.saves++

	return s.saveErr
}

func (s *fakeSession) CurrentPrompt() string { return s.prompt }

func (s *fakeSession) Close() error {
	s.closed = true

	return nil
}

// fakeDialer hands out one fakeSession per host and remembers them for
// post-run assertions.
type fakeDialer struct {
	dialErr  error
	sessions map[string]*fakeSession
}

func (d *fakeDialer) Dial(_ context.Context, record models.DeviceRecord) (session.Session, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}

	if d.sessions == nil {
		d.sessions = make(map[string]*fakeSession)
	}

	sess := &fakeSession{prompt: record.Host() + "#"}
	d.sessions[record.Host()] = sess

	return sess, nil
}

func drainLogs(logs chan models.LogRecord) []models.LogRecord {
	close(logs)

	var records []models.LogRecord
	for record := range logs {
		records = append(records, record)
	}

	return records
}

func TestRunnerPull(t *testing.T) {
	root := t.TempDir()
	dialer := &fakeDialer{}

	r := &Runner{
		Dialer: dialer,
		Spec: models.JobSpec{
			Mode:       models.ModePull,
			Items:      []string{"show version", "show ip route", "show run"},
			OutputRoot: root,
		},
	}

	for _, host := range []string{"sw1", "sw2"} {
		r.Run(context.Background(), models.DeviceRecord{models.FieldHost: host})
	}

	for _, host := range []string{"sw1", "sw2"} {
		sess := dialer.sessions[host]
		require.NotNil(t, sess)
		assert.Equal(t, 1, sess.escalations)
		assert.True(t, sess.closed)
		assert.Equal(t, []string{"show version", "show ip route", "show run"}, sess.readCommands)

		entries, err := os.ReadDir(filepath.Join(root, host))
		require.NoError(t, err)
		require.Len(t, entries, 3)

		content, err := os.ReadFile(filepath.Join(root, host, "show_version.txt"))
		require.NoError(t, err)
		assert.Equal(t, "output of show version\n", string(content))
	}
}

func TestRunnerPullFlatOutput(t *testing.T) {
	root := t.TempDir()
	dialer := &fakeDialer{}
	results := make(chan models.ResultEvent, 8)

	r := &Runner{
		Dialer: dialer,
		Spec: models.JobSpec{
			Mode:       models.ModePull,
			Items:      []string{"show version"},
			OutputRoot: root,
			FlatOutput: true,
		},
		Results: results,
	}

	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	// Flat mode: device-prefixed filename in the shared root, no subdirs.
	content, err := os.ReadFile(filepath.Join(root, "sw1_show_version.txt"))
	require.NoError(t, err)
	assert.Equal(t, "output of show version\n", string(content))

	require.Len(t, results, 1)

	event := <-results
	assert.Equal(t, "sw1", event.DeviceID)
	assert.Equal(t, filepath.Join(root, "sw1_show_version.txt"), event.ArtifactPath)
}

func TestRunnerPush(t *testing.T) {
	root := t.TempDir()
	dialer := &fakeDialer{}

	r := &Runner{
		Dialer: dialer,
		Spec: models.JobSpec{
			Mode:       models.ModePush,
			Items:      []string{"ntp server 10.0.0.1", "logging host 10.0.0.2"},
			OutputRoot: root,
		},
	}

	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	sess := dialer.sessions["sw1"]
	require.NotNil(t, sess)
	require.Len(t, sess.configBatches, 1)
	assert.Equal(t, []string{"ntp server 10.0.0.1", "logging host 10.0.0.2"}, sess.configBatches[0])
	assert.Equal(t, 1, sess.saves, "push must save the configuration")

	content, err := os.ReadFile(filepath.Join(root, "sw1", "configset.txt"))
	require.NoError(t, err)
	assert.Equal(t, "applied\n", string(content))
}

func TestRunnerPushSavesAfterBatchFailure(t *testing.T) {
	root := t.TempDir()
	logs := make(chan models.LogRecord, 16)

	sess := &fakeSession{prompt: "sw1#", batchErr: errors.New("config rejected")}
	dialer := &preparedDialer{sess: sess}

	r := &Runner{
		Dialer: dialer,
		Spec: models.JobSpec{
			Mode:       models.ModePush,
			Items:      []string{"bad line"},
			OutputRoot: root,
		},
		Logs: logs,
	}

	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	assert.Equal(t, 1, sess.saves, "save runs even when the batch fails")

	records := drainLogs(logs)
	assert.True(t, containsCritical(records, "config rejected"))
}

func TestRunnerPushSavesAfterWriteFailure(t *testing.T) {
	// The run root sits under a regular file, so creating the per-device
	// directory fails and the artifact is never written.
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	logs := make(chan models.LogRecord, 16)
	sess := &fakeSession{prompt: "sw1#"}

	r := &Runner{
		Dialer: &preparedDialer{sess: sess},
		Spec: models.JobSpec{
			Mode:       models.ModePush,
			Items:      []string{"ntp server 10.0.0.1"},
			OutputRoot: filepath.Join(blocker, "run"),
		},
		Logs: logs,
	}

	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	assert.Len(t, sess.configBatches, 1)
	assert.Equal(t, 1, sess.saves, "save runs even when the artifact write fails")

	records := drainLogs(logs)
	assert.True(t, containsCritical(records, "preparing directory"))
}

// preparedDialer returns a caller-supplied session, for failure-injection
// tests.
type preparedDialer struct {
	sess *fakeSession
}

func (d *preparedDialer) Dial(_ context.Context, _ models.DeviceRecord) (session.Session, error) {
	return d.sess, nil
}

func containsCritical(records []models.LogRecord, fragment string) bool {
	for _, record := range records {
		if record.Level == models.LevelCritical && strings.Contains(record.Message, fragment) {
			return true
		}
	}

	return false
}

func TestRunnerSaveOnly(t *testing.T) {
	root := t.TempDir()
	dialer := &fakeDialer{}
	logs := make(chan models.LogRecord, 16)

	r := &Runner{
		Dialer: dialer,
		Spec:   models.JobSpec{Mode: models.ModeSaveOnly, OutputRoot: root},
		Logs:   logs,
	}

	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	sess := dialer.sessions["sw1"]
	require.NotNil(t, sess)
	assert.Equal(t, 1, sess.saves)
	assert.Empty(t, sess.readCommands)
	assert.Empty(t, sess.configBatches)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "save-only mode writes no artifacts")

	var confirmed bool

	for _, record := range drainLogs(logs) {
		if record.Level == models.LevelWarning && strings.Contains(record.Message, "saved configuration for sw1") {
			confirmed = true
		}
	}

	assert.True(t, confirmed, "successful save is confirmed at warning level")
}

func TestRunnerSaveOnlyFailureSkipsConfirmation(t *testing.T) {
	logs := make(chan models.LogRecord, 16)
	sess := &fakeSession{prompt: "sw1#", saveErr: errors.New("nvram busy")}

	r := &Runner{
		Dialer: &preparedDialer{sess: sess},
		Spec:   models.JobSpec{Mode: models.ModeSaveOnly, OutputRoot: t.TempDir()},
		Logs:   logs,
	}

	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	records := drainLogs(logs)
	assert.True(t, containsCritical(records, "nvram busy"))

	for _, record := range records {
		assert.NotContains(t, record.Message, "saved configuration")
	}
}

func TestRunnerContainsDialFailures(t *testing.T) {
	logs := make(chan models.LogRecord, 16)

	dialer := &fakeDialer{
		dialErr: &session.AuthError{Host: "sw1", Err: errors.New("permission denied")},
	}

	r := &Runner{
		Dialer: dialer,
		Spec:   models.JobSpec{Mode: models.ModePull, Items: []string{"show version"}, OutputRoot: t.TempDir()},
		Logs:   logs,
	}

	// Must not panic and must not report a job failure; the session error
	// is contained and logged.
	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	records := drainLogs(logs)
	assert.True(t, containsCritical(records, "permission denied"))
	assert.False(t, containsCritical(records, "job failed"))
}

func TestRunnerEscalationFailureIsDeviceFatal(t *testing.T) {
	logs := make(chan models.LogRecord, 16)

	sess := &fakeSession{prompt: "sw1#", escalateErr: errors.New("bad secret")}

	r := &Runner{
		Dialer: &preparedDialer{sess: sess},
		Spec:   models.JobSpec{Mode: models.ModePull, Items: []string{"show version"}, OutputRoot: t.TempDir()},
		Logs:   logs,
	}

	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	assert.Empty(t, sess.readCommands, "no commands run without privilege")

	records := drainLogs(logs)
	assert.True(t, containsCritical(records, "job failed"))
}

func TestRunnerLogsRunningAndFinished(t *testing.T) {
	logs := make(chan models.LogRecord, 16)

	r := &Runner{
		Dialer: &fakeDialer{},
		Spec:   models.JobSpec{Mode: models.ModeSaveOnly, OutputRoot: t.TempDir()},
		Logs:   logs,
	}

	r.Run(context.Background(), models.DeviceRecord{models.FieldHost: "sw1"})

	records := drainLogs(logs)

	var messages []string
	for _, record := range records {
		if record.Level == models.LevelWarning {
			messages = append(messages, record.Message)
		}
	}

	require.GreaterOrEqual(t, len(messages), 2)
	assert.Equal(t, "running - sw1", messages[0])
	assert.Equal(t, "finished - sw1", messages[len(messages)-1])
}
