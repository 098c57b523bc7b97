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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/carverauto/netrun/pkg/logger"
	"github.com/carverauto/netrun/pkg/models"
)

const sniffSampleSize = 4096

var (
	// ErrShortSample indicates the file has fewer than two lines, an
	// insufficient sample for dialect detection.
	ErrShortSample = errors.New("inventory file too short to detect dialect")
	// ErrNoDelimiter indicates no candidate delimiter fit the sample.
	ErrNoDelimiter = errors.New("could not detect inventory field delimiter")
)

// delimiterCandidates in preference order for ties.
var delimiterCandidates = []rune{',', ';', '\t', '|'}

// FileSource streams device records from a delimited inventory file. The
// field delimiter is auto-detected from a short leading sample and the header
// row is zipped positionally onto each data row.
type FileSource struct {
	file   *os.File
	reader *csv.Reader
	header []string
	logger logger.Logger
}

// NewFileSource opens the inventory file and detects its dialect.
func NewFileSource(path string, log logger.Logger) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening inventory %s: %w", path, err)
	}

	sample := make([]byte, sniffSampleSize)

	n, err := f.Read(sample)
	if err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, fmt.Errorf("sampling inventory %s: %w", path, err)
	}

	delimiter, err := sniffDelimiter(string(sample[:n]))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", err, path)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}

	reader := csv.NewReader(f)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reading inventory header from %s: %w", path, err)
	}

	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	log.Debug().
		Str("path", path).
		Str("delimiter", string(delimiter)).
		Strs("header", header).
		Msg("Detected inventory dialect")

	return &FileSource{
		file:   f,
		reader: reader,
		header: header,
		logger: log,
	}, nil
}

// Next implements Source.
func (s *FileSource) Next() (models.DeviceRecord, error) {
	row, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}

	if err != nil {
		return nil, fmt.Errorf("reading inventory row: %w", err)
	}

	record := make(models.DeviceRecord, len(s.header))

	for i, name := range s.header {
		if i >= len(row) {
			break
		}

		record[name] = strings.TrimSpace(row[i])
	}

	return record, nil
}

func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	return err
}

// sniffDelimiter picks the candidate delimiter that appears the same non-zero
// number of times on the first two lines. With no consistent candidate, the
// most frequent one on the header line wins. Fewer than two lines is a parse
// error, reported rather than silently defaulted.
func sniffDelimiter(sample string) (rune, error) {
	sample = strings.ReplaceAll(sample, "\r\n", "\n")

	lines := strings.Split(sample, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[1]) == "" {
		return 0, ErrShortSample
	}

	var (
		best      rune
		bestCount int
	)

	for _, candidate := range delimiterCandidates {
		first := strings.Count(lines[0], string(candidate))
		second := strings.Count(lines[1], string(candidate))

		if first > 0 && first == second {
			return candidate, nil
		}

		if first > bestCount {
			best = candidate
			bestCount = first
		}
	}

	if bestCount == 0 {
		return 0, ErrNoDelimiter
	}

	return best, nil
}
