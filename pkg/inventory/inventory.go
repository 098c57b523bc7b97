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

// Package inventory produces device-connection records from delimited files or
// a remote device-management API.
package inventory

import (
	"errors"
	"io"

	"github.com/carverauto/netrun/pkg/models"
)

// Source is a lazy, finite, forward-only stream of device records. Next
// returns io.EOF when the stream is exhausted.
type Source interface {
	Next() (models.DeviceRecord, error)
	Close() error
}

// Collect drains a source into a slice, closing it afterwards.
func Collect(src Source) ([]models.DeviceRecord, error) {
	defer func() {
		_ = src.Close()
	}()

	var records []models.DeviceRecord

	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}

		if err != nil {
			return records, err
		}

		records = append(records, rec)
	}
}
