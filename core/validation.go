// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
)

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - id must be present and render to a non-empty string
//   - raw_text must be a non-empty string
//
// NOT validated (populated by stages):
//   - llm_classification, inventory_velocity, priority_score
func ValidateRecord(record Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.ID() == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingID)
	}

	if record.Text() == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrMissingText)
	}

	return nil
}

// ValidateBatch rejects empty batches with ErrSourceEmpty and batches holding
// any invalid record or a repeated id with ErrSourceFormatInvalid.
func ValidateBatch(batch Batch) error {
	if batch.IsEmpty() {
		return fmt.Errorf("%w: %s produced no records", ErrSourceEmpty, batch.Source)
	}

	seen := make(map[string]int, len(batch.Records))
	for i, record := range batch.Records {
		if err := ValidateRecord(record); err != nil {
			return fmt.Errorf("%w: record %d: %w", ErrSourceFormatInvalid, i, err)
		}
		id := record.ID()
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("%w: records %d and %d: %w %q", ErrSourceFormatInvalid, prev, i, ErrDuplicateID, id)
		}
		seen[id] = i
	}
	return nil
}

// IsValidBatch reports whether ValidateBatch accepts batch.
func IsValidBatch(batch Batch) bool {
	return ValidateBatch(batch) == nil
}
