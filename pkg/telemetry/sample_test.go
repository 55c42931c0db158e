package telemetry_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/srg/gaitmon/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSample() telemetry.Sample {
	return telemetry.Sample{
		DeviceID:  "sensor-001",
		R1:        250.0,
		R2:        300.0,
		R3:        275.0,
		X:         0.5,
		Y:         1.2,
		Z:         9.8,
		Timestamp: 1642784400000,
	}
}

func TestSample_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*telemetry.Sample)
		wantErr error
	}{
		{
			name:   "accepts valid sample",
			mutate: func(*telemetry.Sample) {},
		},
		{
			name:    "rejects empty device id",
			mutate:  func(s *telemetry.Sample) { s.DeviceID = "" },
			wantErr: telemetry.ErrEmptyDeviceID,
		},
		{
			name:    "rejects zero timestamp",
			mutate:  func(s *telemetry.Sample) { s.Timestamp = 0 },
			wantErr: telemetry.ErrZeroTimestamp,
		},
		{
			name:    "rejects force beyond range",
			mutate:  func(s *telemetry.Sample) { s.R2 = 1500.0 },
			wantErr: telemetry.ErrValueOutOfRange,
		},
		{
			name:    "rejects negative force beyond range",
			mutate:  func(s *telemetry.Sample) { s.R1 = -1200.0 },
			wantErr: telemetry.ErrValueOutOfRange,
		},
		{
			name:    "rejects acceleration beyond range",
			mutate:  func(s *telemetry.Sample) { s.Z = 80.0 },
			wantErr: telemetry.ErrValueOutOfRange,
		},
		{
			name:    "rejects NaN",
			mutate:  func(s *telemetry.Sample) { s.X = float32(math.NaN()) },
			wantErr: telemetry.ErrValueNotFinite,
		},
		{
			name:    "rejects infinity",
			mutate:  func(s *telemetry.Sample) { s.Y = float32(math.Inf(1)) },
			wantErr: telemetry.ErrValueNotFinite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSample()
			tt.mutate(&s)

			err := s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSample_JSONShape(t *testing.T) {
	s := validSample().WithSampleRate(99.5)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "sensor-001", decoded["device_id"])
	assert.Contains(t, decoded, "r1")
	assert.Contains(t, decoded, "sample_rate")

	// Without a declared rate the field is omitted, not zero.
	data, err = json.Marshal(validSample())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sample_rate")
}

func TestHeartbeat_JSONShape(t *testing.T) {
	hb := telemetry.Heartbeat{
		DeviceID:          "sensor-001",
		DeviceTimestamp:   123456,
		Sequence:          42,
		ReceivedTimestamp: 1642784400000,
	}

	data, err := json.Marshal(hb)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(42), decoded["sequence"])
	assert.Contains(t, decoded, "device_timestamp")
	assert.Contains(t, decoded, "received_timestamp")
}
