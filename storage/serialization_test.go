package storage

import (
	"bytes"
	"testing"
	"time"

	"github.com/poiesic/recollect/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIDSortsNumerically(t *testing.T) {
	small := MarshalID(core.ID(42))
	large := MarshalID(core.ID(1 << 40))
	assert.Equal(t, -1, bytes.Compare(small, large))

	decoded, err := UnmarshalID(large)
	require.NoError(t, err)
	assert.Equal(t, core.ID(1<<40), decoded)
}

func TestUnmarshalID_Truncated(t *testing.T) {
	_, err := UnmarshalID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestMemoryPreservesOptionalFields(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	due := now.Add(48 * time.Hour)
	memory := &core.Memory{
		Id:         core.IDFromContent("Send the report to John by Friday"),
		Content:    "Send the report to John by Friday",
		SourceType: core.SourceEmail,
		Embedding:  []float32{0.25, -0.5},
		Entities:   []core.Entity{{Name: "John", Type: "person"}},
		Commitments: []core.Commitment{
			{Text: "send the report", DueDate: &due, Assignee: "me"},
			{Text: "someday"},
		},
		Importance: 0.7,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    3,
	}

	data, err := MarshalMemory(memory)
	require.NoError(t, err)

	decoded, err := UnmarshalMemory(data)
	require.NoError(t, err)
	require.Len(t, decoded.Commitments, 2)
	require.NotNil(t, decoded.Commitments[0].DueDate)
	assert.True(t, due.Equal(*decoded.Commitments[0].DueDate))
	assert.Nil(t, decoded.Commitments[1].DueDate)
	assert.Equal(t, memory.Embedding, decoded.Embedding)
	assert.Equal(t, 3, decoded.Version)
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := UnmarshalMemory([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalRunRecord([]byte("]"))
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestRunRecordKeepsStageResults(t *testing.T) {
	run := &core.RunRecord{
		RunID: "abc",
		State: core.RunComplete,
		Results: []core.StageResult{
			{Stage: core.StageEntity, Skipped: true},
			{Stage: core.StageEmbedding, Duration: 15 * time.Millisecond},
		},
	}
	data, err := MarshalRunRecord(run)
	require.NoError(t, err)
	decoded, err := UnmarshalRunRecord(data)
	require.NoError(t, err)
	require.Len(t, decoded.Results, 2)
	assert.True(t, decoded.Results[0].Skipped)
	assert.Equal(t, 15*time.Millisecond, decoded.Results[1].Duration)
}
