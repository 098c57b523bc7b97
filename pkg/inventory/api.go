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

package inventory

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carverauto/netrun/pkg/filter"
	"github.com/carverauto/netrun/pkg/logger"
	"github.com/carverauto/netrun/pkg/models"
	"github.com/carverauto/netrun/pkg/session"
)

var (
	errUnexpectedStatusCode = errors.New("unexpected status code")
	errBadResponseStatus    = errors.New("device API reported failure")
	errNoDeviceList         = errors.New("device API response missing device list")
)

// apiDevice is one device entry as reported by the management API. Extra
// fields are retained raw so filter rules can reference them.
type apiDevice map[string]interface{}

type deviceResponse struct {
	Status  string            `json:"status"`
	Count   int               `json:"count"`
	Devices []json.RawMessage `json:"devices"`
}

// APISource yields one DeviceRecord per device surviving the filter chain,
// merging in the shared login template from the API config. The device list
// is fetched once, on first Next.
type APISource struct {
	config  *APIConfig
	chain   filter.Chain
	client  *http.Client
	logger  logger.Logger
	ctx     context.Context
	fetched bool
	queue   []models.DeviceRecord
	err     error
}

// NewAPISource builds a source from a validated APIConfig.
func NewAPISource(ctx context.Context, cfg *APIConfig, log logger.Logger) *APISource {
	//nolint:gosec // TLS verification is an explicit, defaulted-on config knob
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !*cfg.TLSVerify,
		},
	}

	return &APISource{
		config: cfg,
		chain:  filter.WithDefault(cfg.Filters),
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Timeout),
		},
		logger: log,
		ctx:    ctx,
	}
}

// Next implements Source.
func (s *APISource) Next() (models.DeviceRecord, error) {
	if !s.fetched {
		s.fetched = true
		s.queue, s.err = s.fetch(s.ctx)
	}

	if s.err != nil {
		return nil, s.err
	}

	if len(s.queue) == 0 {
		return nil, io.EOF
	}

	rec := s.queue[0]
	s.queue = s.queue[1:]

	return rec, nil
}

func (*APISource) Close() error { return nil }

// fetch issues the single device-list query and filters the result. Any shape
// violation is fatal to this source, not retried.
func (s *APISource) fetch(ctx context.Context) ([]models.DeviceRecord, error) {
	url := fmt.Sprintf("%s://%s:%d/api/v0/devices", s.config.Protocol, s.config.Host, s.config.Port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-Auth-Token", s.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying device API: %w", err)
	}

	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("Failed to close device API response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errUnexpectedStatusCode, resp.StatusCode)
	}

	var deviceResp deviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&deviceResp); err != nil {
		return nil, fmt.Errorf("decoding device API response: %w", err)
	}

	if deviceResp.Status != "ok" {
		return nil, fmt.Errorf("%w: status %q", errBadResponseStatus, deviceResp.Status)
	}

	if deviceResp.Devices == nil {
		return nil, errNoDeviceList
	}

	s.logger.Info().
		Int("devices", len(deviceResp.Devices)).
		Str("host", s.config.Host).
		Msg("Fetched device list from management API")

	return s.processDevices(deviceResp.Devices)
}

func (s *APISource) processDevices(raw []json.RawMessage) ([]models.DeviceRecord, error) {
	records := make([]models.DeviceRecord, 0, len(raw))

	for _, entry := range raw {
		var device apiDevice
		if err := json.Unmarshal(entry, &device); err != nil {
			return nil, fmt.Errorf("decoding device entry: %w", err)
		}

		fields := device.stringFields()

		ok, err := s.chain.Match(fields)
		if err != nil {
			// Malformed rule: configuration defect, fatal.
			return nil, err
		}

		if !ok {
			s.logger.Debug().
				Str("os", fields.OS()).
				Str("hostname", fields["hostname"]).
				Msg("Device excluded by filter rules")

			continue
		}

		address := firstNonBlank(fields["ip"], fields["hostname"], fields["sysName"])
		if address == "" {
			s.logger.Debug().Str("os", fields.OS()).Msg("Device has no usable address, skipping")
			continue
		}

		platform, ok := session.PlatformForOS(fields.OS())
		if !ok {
			s.logger.Debug().
				Str("os", fields.OS()).
				Str("address", address).
				Msg("Device OS has no session mapping, skipping")

			continue
		}

		record := fields.Clone()
		record[models.FieldHost] = address
		record[models.FieldDeviceType] = platform.DeviceType
		record[models.FieldUsername] = s.config.Username
		record[models.FieldPassword] = s.config.Password
		record[models.FieldSecret] = s.config.Secret

		records = append(records, record)
	}

	return records, nil
}

// stringFields flattens the raw entry into a DeviceRecord, stringifying every
// scalar value.
func (d apiDevice) stringFields() models.DeviceRecord {
	record := make(models.DeviceRecord, len(d))

	for k, v := range d {
		switch value := v.(type) {
		case string:
			record[k] = value
		case nil:
			record[k] = ""
		default:
			record[k] = fmt.Sprintf("%v", value)
		}
	}

	return record
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
