package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hbai-chat-go/internal/config"
	"hbai-chat-go/internal/model"
)

func TestNewModelConfig(t *testing.T) {
	tests := []struct {
		quantization string
		wantBits     int
		wantErr      bool
	}{
		{"4bit", 4, false},
		{"4BIT", 4, false},
		{"none", 0, false},
		{"", 0, false},
		{"8bit", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.quantization, func(t *testing.T) {
			cfg, err := NewModelConfig(config.ModelSettings{Quantization: tt.quantization}, model.DeviceCUDA)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBits, cfg.QuantizationBits)
			assert.Equal(t, model.DeviceCUDA, cfg.Device)
			assert.Equal(t, 10, cfg.MaxContextTurns)
		})
	}
}
