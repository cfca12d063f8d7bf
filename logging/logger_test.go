package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "defaults",
			cfg:     Config{},
			wantErr: false,
		},
		{
			name:    "json to stdout",
			cfg:     Config{Level: "debug", Format: "json", Output: "stdout"},
			wantErr: false,
		},
		{
			name:    "text to stderr",
			cfg:     Config{Level: "warn", Format: "text", Output: "stderr"},
			wantErr: false,
		},
		{
			name:    "invalid level",
			cfg:     Config{Level: "verbose"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			cfg:     Config{Format: "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := t.TempDir() + "/run.log"
	logger, err := New(Config{Output: path})
	require.NoError(t, err)

	logger.Info("pipeline started", "subject", "sub-01")
}

func TestLevelForVerbosity(t *testing.T) {
	tests := []struct {
		verbose int
		want    string
		wantErr bool
	}{
		{verbose: 0, want: "warn"},
		{verbose: 1, want: "info"},
		{verbose: 2, want: "debug"},
		{verbose: 3, wantErr: true},
		{verbose: -1, wantErr: true},
	}

	for _, tt := range tests {
		got, err := LevelForVerbosity(tt.verbose)
		if tt.wantErr {
			assert.Error(t, err, "verbose=%d", tt.verbose)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
