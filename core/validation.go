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
	"strings"
	"time"
)

// ValidateContentUnit validates a ContentUnit before it enters the pipeline.
//
// Validation rules:
//   - RawText must contain non-whitespace characters
//   - SourceType must be note, email or calendar
//   - ReceivedAt must not be in the future
//
// ID 0 is accepted; the pipeline derives one from content.
func ValidateContentUnit(unit *ContentUnit) error {
	if unit == nil {
		return fmt.Errorf("%w: unit is nil", ErrInvalidContentUnit)
	}

	if strings.TrimSpace(unit.RawText) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidContentUnit, ErrEmptyContent)
	}

	if err := ValidateSourceType(unit.SourceType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContentUnit, err)
	}

	if !IsValidTimestamp(unit.ReceivedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidContentUnit, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateMemory validates a Memory before it is indexed.
// A dims value of zero skips the embedding dimension check.
func ValidateMemory(memory *Memory, dims int) error {
	if memory == nil {
		return fmt.Errorf("%w: memory is nil", ErrInvalidMemory)
	}

	if memory.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMemory, ErrEmptyContent)
	}

	if memory.Importance < 0 || memory.Importance > 1 {
		return fmt.Errorf("%w: %w: %v", ErrInvalidMemory, ErrImportanceOutOfRange, memory.Importance)
	}

	if len(memory.Embedding) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidMemory, ErrEmptyEmbedding)
	}

	if dims > 0 && len(memory.Embedding) != dims {
		return fmt.Errorf("%w: embedding has %d dimensions, index expects %d",
			ErrConfiguration, len(memory.Embedding), dims)
	}

	return nil
}

// ValidateSourceType validates that a SourceType has a known value.
func ValidateSourceType(source SourceType) error {
	switch source {
	case SourceNote, SourceEmail, SourceCalendar:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidSourceType, string(source))
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
