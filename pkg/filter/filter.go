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

// Package filter evaluates declarative match rules against device records.
package filter

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/carverauto/netrun/pkg/models"
)

var (
	// ErrFieldMissing marks a rule referencing a field the record does not
	// carry. This is a configuration defect, not device variance.
	ErrFieldMissing = errors.New("filter rule references missing field")

	errBadQualifier = errors.New("unknown filter qualifier")
	errBadPattern   = errors.New("invalid filter pattern")
)

// Qualifier selects how rule candidates are compared to the field value.
type Qualifier string

const (
	// QualifierEquals compares candidates by string equality.
	QualifierEquals Qualifier = "equals"
	// QualifierMatchesPattern treats candidates as regular expressions and
	// applies a partial (unanchored) search against the field value.
	QualifierMatchesPattern Qualifier = "matches_pattern"
)

// Rule is one declarative match rule. Rules are pure functions over a record.
type Rule struct {
	Field      string    `json:"field" yaml:"field"`
	Qualifier  Qualifier `json:"qualifier" yaml:"qualifier"`
	Candidates []string  `json:"candidates" yaml:"candidates"`
	Inverted   bool      `json:"inverted" yaml:"inverted"`
	RequireAll bool      `json:"require_all" yaml:"require_all"`
}

// Match reports whether the record satisfies the rule. The candidate-match
// count must satisfy require_all ? count == len(candidates) : count > 0,
// XORed with inverted.
func (r *Rule) Match(record models.DeviceRecord) (bool, error) {
	value, ok := record.Field(r.Field)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrFieldMissing, r.Field)
	}

	matched := 0

	for _, candidate := range r.Candidates {
		ok, err := r.matchCandidate(candidate, value)
		if err != nil {
			return false, err
		}

		if ok {
			matched++
		}
	}

	var result bool
	if r.RequireAll {
		result = matched == len(r.Candidates)
	} else {
		result = matched > 0
	}

	return result != r.Inverted, nil
}

func (r *Rule) matchCandidate(candidate, value string) (bool, error) {
	switch r.Qualifier {
	case QualifierEquals:
		return value == candidate, nil
	case QualifierMatchesPattern:
		ok, err := regexp.MatchString(candidate, value)
		if err != nil {
			return false, fmt.Errorf("%w: %q: %w", errBadPattern, candidate, err)
		}

		return ok, nil
	default:
		return false, fmt.Errorf("%w: %q", errBadQualifier, r.Qualifier)
	}
}

// Chain is an ordered rule set applied as a logical AND: each rule filters the
// survivors of the previous one.
type Chain []Rule

// Match reports whether the record survives every rule in the chain.
func (c Chain) Match(record models.DeviceRecord) (bool, error) {
	for i := range c {
		ok, err := c[i].Match(record)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// osDenylist matches operating systems this tool cannot usefully talk to:
// generic servers, hypervisors, power distribution gear, and blank entries.
// Matching is case-sensitive.
var osDenylist = []string{
	"^$",
	"linux",
	"windows",
	"vmware",
	"esxi",
	"proxmox",
	"hyperv",
	"server",
	"pdu",
	"ups",
	"idrac",
	"ilo",
}

// DefaultDenylist returns the built-in rule that excludes device records whose
// operating system is not a supported network OS. It runs unconditionally
// before any user-supplied rules.
func DefaultDenylist() Rule {
	return Rule{
		Field:      models.FieldOS,
		Qualifier:  QualifierMatchesPattern,
		Candidates: append([]string(nil), osDenylist...),
		Inverted:   true,
	}
}

// WithDefault prepends the built-in denylist rule to the user rules.
func WithDefault(rules []Rule) Chain {
	chain := make(Chain, 0, len(rules)+1)
	chain = append(chain, DefaultDenylist())
	chain = append(chain, rules...)

	return chain
}
