package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateContentUnit(t *testing.T) {
	validTime := time.Now().Add(-1 * time.Hour)
	futureTime := time.Now().Add(1 * time.Hour)

	tests := []struct {
		name    string
		unit    *ContentUnit
		wantErr error
	}{
		{
			name: "valid note",
			unit: &ContentUnit{
				Id:         1,
				RawText:    "Buy milk",
				SourceType: SourceNote,
				ReceivedAt: validTime,
			},
			wantErr: nil,
		},
		{
			name: "valid unit with ID 0",
			unit: &ContentUnit{
				RawText:    "Standup moved to 10am",
				SourceType: SourceCalendar,
				ReceivedAt: validTime,
			},
			wantErr: nil,
		},
		{
			name:    "nil unit",
			unit:    nil,
			wantErr: ErrInvalidContentUnit,
		},
		{
			name: "whitespace text",
			unit: &ContentUnit{
				RawText:    "   \n\t",
				SourceType: SourceEmail,
				ReceivedAt: validTime,
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "unknown source",
			unit: &ContentUnit{
				RawText:    "hello",
				SourceType: SourceType("fax"),
				ReceivedAt: validTime,
			},
			wantErr: ErrInvalidSourceType,
		},
		{
			name: "future timestamp",
			unit: &ContentUnit{
				RawText:    "hello",
				SourceType: SourceNote,
				ReceivedAt: futureTime,
			},
			wantErr: ErrInvalidTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContentUnit(tt.unit)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateContentUnit() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateContentUnit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMemory(t *testing.T) {
	base := func() *Memory {
		return &Memory{
			Id:         7,
			Content:    "Dentist on Friday",
			Embedding:  []float32{0.1, 0.2, 0.3},
			Importance: 0.5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(m *Memory)
		dims    int
		wantErr error
	}{
		{name: "valid", mutate: func(m *Memory) {}, dims: 3},
		{name: "dims unchecked", mutate: func(m *Memory) {}, dims: 0},
		{name: "empty content", mutate: func(m *Memory) { m.Content = "" }, wantErr: ErrEmptyContent},
		{name: "importance above one", mutate: func(m *Memory) { m.Importance = 1.01 }, wantErr: ErrImportanceOutOfRange},
		{name: "importance negative", mutate: func(m *Memory) { m.Importance = -0.1 }, wantErr: ErrImportanceOutOfRange},
		{name: "no embedding", mutate: func(m *Memory) { m.Embedding = nil }, wantErr: ErrEmptyEmbedding},
		{name: "dimension mismatch", mutate: func(m *Memory) {}, dims: 4, wantErr: ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			err := ValidateMemory(m, tt.dims)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateMemory() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMemory() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateMemory(nil, 0); !errors.Is(err, ErrInvalidMemory) {
		t.Errorf("ValidateMemory(nil) error = %v, want %v", err, ErrInvalidMemory)
	}
}

func TestParseSourceType(t *testing.T) {
	got, err := ParseSourceType(" Email ")
	if err != nil || got != SourceEmail {
		t.Fatalf("ParseSourceType() = %q, %v", got, err)
	}
	if _, err := ParseSourceType("sms"); !errors.Is(err, ErrInvalidSourceType) {
		t.Errorf("ParseSourceType(sms) error = %v", err)
	}
}
