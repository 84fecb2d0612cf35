package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/tof"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := &CameraConfig{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DeviceSimulated, cfg.GetDevice())
	assert.Equal(t, "tintin", cfg.GetGeneration())
	assert.Equal(t, camera.CallbackDepth, cfg.GetCallbackType())
	assert.True(t, cfg.GetFrameSize().IsZero())
	assert.Equal(t, frame.FrameRate{}, cfg.GetFrameRate())
	rows, cols := cfg.GetBinning()
	assert.Equal(t, [2]uint32{1, 1}, [2]uint32{rows, cols})
	assert.Equal(t, PoolSizes{}, cfg.GetPoolSizes())
	assert.Equal(t, tof.DefaultLens, cfg.GetLens())
	assert.Equal(t, "depthcam.db", cfg.GetSessionDB())
	assert.Equal(t, "localhost:8089", cfg.GetDebugListen())
	assert.Equal(t, "localhost:50061", cfg.GetGRPCListen())
	assert.Equal(t, 10*time.Second, cfg.GetStatsInterval())
}

func TestLoad_JSON(t *testing.T) {
	path := writeConfig(t, "camera.json", `{
  "generation": "haddock",
  "callback": "pointcloud",
  "frame_width": 160,
  "frame_height": 120,
  "frame_rate": 12.5,
  "pool_sizes": {"raw": 4, "depth": 3, "point_cloud": 2},
  "calibration": {"phase_corr_1": -12, "coeff_illum_1": 1.5},
  "parameters": {"intg_time": 25, "histogram_en": true},
  "stats_interval": "2s"
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "haddock", cfg.GetGeneration())
	assert.Equal(t, camera.CallbackPointCloud, cfg.GetCallbackType())
	assert.Equal(t, frame.FrameSize{Width: 160, Height: 120}, cfg.GetFrameSize())
	assert.Equal(t, frame.FrameRate{Numerator: 12500, Denominator: 1000}, cfg.GetFrameRate())
	assert.Equal(t, PoolSizes{Raw: 4, Depth: 3, PointCloud: 2}, cfg.GetPoolSizes())
	assert.Equal(t, int32(-12), cfg.GetCalibration().PhaseCorr1)
	assert.Equal(t, 2*time.Second, cfg.GetStatsInterval())

	want := map[string]any{"intg_time": 25.0, "histogram_en": true}
	if diff := cmp.Diff(want, cfg.Parameters); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_YAMLWithEnv(t *testing.T) {
	t.Setenv("DEPTHCAM_PORT", "/dev/ttyACM3")
	path := writeConfig(t, "camera.yaml", `
device: serial
serial_port: ${DEPTHCAM_PORT}
port_options:
  baud_rate: 230400
frame_width: 80
frame_height: 60
rows_to_merge: 2
cols_to_merge: 2
frame_rate: 30
lens:
  horizontal_fov: 74
  vertical_fov: 59
parameters:
  illum_power_percentage: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DeviceSerial, cfg.GetDevice())
	assert.Equal(t, "/dev/ttyACM3", cfg.GetSerialPort())
	assert.Equal(t, 230400, cfg.GetPortOptions().BaudRate)
	assert.Equal(t, frame.FrameRate{Numerator: 30, Denominator: 1}, cfg.GetFrameRate())
	rows, cols := cfg.GetBinning()
	assert.Equal(t, [2]uint32{2, 2}, [2]uint32{rows, cols})
	assert.Equal(t, tof.Lens{HorizontalFOV: 74, VerticalFOV: 59}, cfg.GetLens())
	assert.Equal(t, 50, cfg.Parameters["illum_power_percentage"])
}

func TestLoad_Errors(t *testing.T) {
	t.Run("extension", func(t *testing.T) {
		_, err := Load(writeConfig(t, "camera.toml", "device = 'simulated'"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extension")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
	})

	t.Run("too large", func(t *testing.T) {
		body := `{"parameters": {"x": "` + strings.Repeat("a", maxFileSize) + `"}}`
		_, err := Load(writeConfig(t, "big.json", body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Load(writeConfig(t, "bad.json", `{"frame_rate": "fast"`))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	str := func(s string) *string { return &s }
	num := func(n int) *int { return &n }
	fps := func(f float64) *float64 { return &f }

	cases := []struct {
		name string
		cfg  CameraConfig
	}{
		{"unknown device", CameraConfig{Device: str("usb")}},
		{"serial without port", CameraConfig{Device: str("serial")}},
		{"unknown generation", CameraConfig{Generation: str("calculus")}},
		{"unknown callback", CameraConfig{Callback: str("histogram")}},
		{"width without height", CameraConfig{FrameWidth: num(160)}},
		{"zero size", CameraConfig{FrameWidth: num(0), FrameHeight: num(120)}},
		{"negative rate", CameraConfig{FrameRate: fps(-1)}},
		{"merge too large", CameraConfig{FrameWidth: num(40), FrameHeight: num(30), RowsToMerge: num(9)}},
		{"binning without size", CameraConfig{RowsToMerge: num(2)}},
		{"negative pool", CameraConfig{PoolSizes: &PoolSizes{Raw: -1}}},
		{"bad interval", CameraConfig{StatsInterval: str("soon")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.cfg.Validate(), ErrInvalid)
		})
	}
}
