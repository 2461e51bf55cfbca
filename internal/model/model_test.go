package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerHealth_IsHealthy(t *testing.T) {
	tests := []struct {
		name   string
		health ServerHealth
		want   bool
	}{
		{
			name:   "healthy without models",
			health: ServerHealth{Status: "healthy"},
			want:   true,
		},
		{
			name: "degraded with all models loaded",
			health: ServerHealth{
				Status:         "degraded",
				EncoderLoaded:  true,
				FeaturesLoaded: true,
				ModelLoaded:    true,
				ScalerLoaded:   true,
			},
			want: false,
		},
		{
			name:   "healthy status but error message",
			health: ServerHealth{Status: "healthy", ErrorMessage: "boom"},
			want:   false,
		},
		{
			name:   "error constructor",
			health: HealthError("connection refused"),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.health.IsHealthy())
		})
	}
}

func TestServerHealth_AllModelsLoaded(t *testing.T) {
	h := ServerHealth{EncoderLoaded: true, FeaturesLoaded: true, ModelLoaded: true}
	assert.False(t, h.AllModelsLoaded())
	h.ScalerLoaded = true
	assert.True(t, h.AllModelsLoaded())
}

func TestPrediction_IsAttack(t *testing.T) {
	assert.True(t, NewPrediction(1, "Attack", 0.9, 0.1, 0.9).IsAttack())
	assert.True(t, NewPrediction(1, "ATTACK", 0.9, 0.1, 0.9).IsAttack())
	assert.False(t, NewPrediction(0, "Normal", 0.8, 0.8, 0.2).IsAttack())
	assert.False(t, NewPrediction(-1, "Unknown", 0, 0, 0).IsAttack())
	assert.False(t, PredictionError("timeout").IsAttack())
}

func TestPrediction_Formatted(t *testing.T) {
	p := NewPrediction(1, "Attack", 0.9, 0.1, 0.9)
	assert.Equal(t, "Prediction: Attack (1)\nConfidence: 0.90\nProbabilities: Normal=0.10, Attack=0.90\nStatus: success", p.Formatted())

	e := PredictionError("Server error: 500 - oops")
	assert.Equal(t, "Error: Server error: 500 - oops", e.Formatted())
	assert.Equal(t, StatusError, e.Status)
	assert.False(t, e.Succeeded())
}

func TestSessionStatistics_AttackRatio(t *testing.T) {
	assert.Zero(t, SessionStatistics{}.AttackRatio())
	assert.InDelta(t, 0.25, SessionStatistics{TotalCaptured: 8, AttackCount: 2}.AttackRatio(), 1e-9)
}
