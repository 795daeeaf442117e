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
	"errors"
	"fmt"
)

// Error kinds shared by every component. Callers match them with errors.Is.
var (
	// ErrConfiguration indicates a misconfiguration such as an embedding
	// dimension mismatch. It is never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrQuotaExceeded indicates the rate governor denied a call.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInferenceCall indicates a remote model call failed or timed out.
	ErrInferenceCall = errors.New("inference call failed")

	// ErrParse indicates model output could not be interpreted.
	ErrParse = errors.New("parse failure")

	// ErrStorage indicates a durable store or vector index failure.
	ErrStorage = errors.New("storage failure")

	// ErrTimeout indicates a pipeline run exceeded its overall budget.
	ErrTimeout = errors.New("pipeline budget exceeded")
)

// Domain validation errors
var (
	// ErrInvalidContentUnit indicates a ContentUnit failed validation.
	ErrInvalidContentUnit = errors.New("invalid content unit")

	// ErrInvalidMemory indicates a Memory failed validation.
	ErrInvalidMemory = errors.New("invalid memory")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")

	// ErrEmptyContent indicates the text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidSourceType indicates an unknown SourceType value.
	ErrInvalidSourceType = errors.New("invalid source type")

	// ErrImportanceOutOfRange indicates an importance score outside [0,1].
	ErrImportanceOutOfRange = errors.New("importance must be within [0,1]")

	// ErrEmptyEmbedding indicates a Memory has no embedding vector.
	ErrEmptyEmbedding = errors.New("embedding cannot be empty")

	// ErrInvalidTransition indicates an illegal pipeline state change.
	ErrInvalidTransition = errors.New("invalid run state transition")
)

// StageError attaches the failing stage to an error.
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage that produced it.
// A nil err yields nil.
func NewStageError(stage StageName, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) && se.Stage == stage {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
