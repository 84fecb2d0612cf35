// Package config loads the depthcam camera configuration.
//
// Every field is optional. Fields are pointers so that an omitted value can
// be told apart from a zero one; the Get* methods return the default for
// anything not set in the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/serialmux"
	"github.com/banshee-data/depthcam/internal/tof"
)

var ErrInvalid = errors.New("invalid configuration")

// Device kinds.
const (
	DeviceSimulated = "simulated"
	DeviceSerial    = "serial"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// PoolSizes sets the capacity of each frame pool.
type PoolSizes struct {
	Raw        int `json:"raw" yaml:"raw"`
	Depth      int `json:"depth" yaml:"depth"`
	PointCloud int `json:"point_cloud" yaml:"point_cloud"`
}

// CameraConfig is the root of a camera configuration file.
type CameraConfig struct {
	Device      *string                `json:"device,omitempty" yaml:"device,omitempty"`
	Generation  *string                `json:"generation,omitempty" yaml:"generation,omitempty"`
	SerialPort  *string                `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	PortOptions *serialmux.PortOptions `json:"port_options,omitempty" yaml:"port_options,omitempty"`

	Callback    *string  `json:"callback,omitempty" yaml:"callback,omitempty"`
	FrameWidth  *int     `json:"frame_width,omitempty" yaml:"frame_width,omitempty"`
	FrameHeight *int     `json:"frame_height,omitempty" yaml:"frame_height,omitempty"`
	FrameRate   *float64 `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	RowsToMerge *int     `json:"rows_to_merge,omitempty" yaml:"rows_to_merge,omitempty"`
	ColsToMerge *int     `json:"cols_to_merge,omitempty" yaml:"cols_to_merge,omitempty"`

	PoolSizes   *PoolSizes       `json:"pool_sizes,omitempty" yaml:"pool_sizes,omitempty"`
	Calibration *tof.Calibration `json:"calibration,omitempty" yaml:"calibration,omitempty"`
	Lens        *tof.Lens        `json:"lens,omitempty" yaml:"lens,omitempty"`
	// Parameters are applied by name after the device is initialised.
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	SessionDB     *string `json:"session_db,omitempty" yaml:"session_db,omitempty"`
	DebugListen   *string `json:"debug_listen,omitempty" yaml:"debug_listen,omitempty"`
	GRPCListen    *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty" yaml:"stats_interval,omitempty"` // duration string like "10s"
}

// Load reads a .json, .yaml or .yml file. ${VAR} references are expanded
// from the environment before parsing.
func Load(path string) (*CameraConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, ext)
}

// Parse decodes data in the format named by ext (".json", ".yaml", ".yml").
func Parse(data []byte, ext string) (*CameraConfig, error) {
	expanded := os.Expand(string(data), func(name string) string {
		v, ok := os.LookupEnv(name)
		if !ok {
			monitoring.Logf("config: environment variable %s is not set", name)
		}
		return v
	})

	cfg := &CameraConfig{}
	switch ext {
	case ".json":
		if err := json.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *CameraConfig) Validate() error {
	switch c.GetDevice() {
	case DeviceSimulated:
	case DeviceSerial:
		if c.GetSerialPort() == "" {
			return fmt.Errorf("%w: serial_port is required for the serial device", ErrInvalid)
		}
		if _, err := c.GetPortOptions().Normalise(); err != nil {
			return fmt.Errorf("%w: port_options: %w", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: device must be %q or %q, got %q", ErrInvalid, DeviceSimulated, DeviceSerial, c.GetDevice())
	}

	if _, err := tof.ParseGeneration(c.GetGeneration()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := camera.ParseCallbackType(c.GetCallback()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if (c.FrameWidth == nil) != (c.FrameHeight == nil) {
		return fmt.Errorf("%w: frame_width and frame_height must be set together", ErrInvalid)
	}
	if c.FrameWidth != nil && (*c.FrameWidth <= 0 || *c.FrameHeight <= 0) {
		return fmt.Errorf("%w: frame size must be positive, got %dx%d", ErrInvalid, *c.FrameWidth, *c.FrameHeight)
	}
	if c.FrameRate != nil && (*c.FrameRate <= 0 || math.IsInf(*c.FrameRate, 0) || math.IsNaN(*c.FrameRate)) {
		return fmt.Errorf("%w: frame_rate must be positive, got %v", ErrInvalid, *c.FrameRate)
	}
	for name, v := range map[string]*int{"rows_to_merge": c.RowsToMerge, "cols_to_merge": c.ColsToMerge} {
		if v != nil && (*v < 1 || *v > 8) {
			return fmt.Errorf("%w: %s must be between 1 and 8, got %d", ErrInvalid, name, *v)
		}
	}
	if (c.RowsToMerge != nil || c.ColsToMerge != nil) && c.FrameWidth == nil {
		return fmt.Errorf("%w: binning needs frame_width and frame_height", ErrInvalid)
	}

	if p := c.PoolSizes; p != nil && (p.Raw < 0 || p.Depth < 0 || p.PointCloud < 0) {
		return fmt.Errorf("%w: pool sizes must not be negative", ErrInvalid)
	}

	if c.StatsInterval != nil && *c.StatsInterval != "" {
		d, err := time.ParseDuration(*c.StatsInterval)
		if err != nil {
			return fmt.Errorf("%w: invalid stats_interval '%s': %w", ErrInvalid, *c.StatsInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("%w: stats_interval must not be negative, got %s", ErrInvalid, d)
		}
	}
	return nil
}

func (c *CameraConfig) GetDevice() string {
	if c.Device == nil || *c.Device == "" {
		return DeviceSimulated
	}
	return strings.ToLower(*c.Device)
}

func (c *CameraConfig) GetGeneration() string {
	if c.Generation == nil {
		return "tintin"
	}
	return *c.Generation
}

func (c *CameraConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetPortOptions returns the configured options; Normalise fills in the
// defaults.
func (c *CameraConfig) GetPortOptions() serialmux.PortOptions {
	if c.PortOptions == nil {
		return serialmux.PortOptions{}
	}
	return *c.PortOptions
}

func (c *CameraConfig) GetCallback() string {
	if c.Callback == nil || *c.Callback == "" {
		return "depth"
	}
	return *c.Callback
}

// GetCallbackType parses the callback name. Validate has already rejected
// unknown names.
func (c *CameraConfig) GetCallbackType() camera.CallbackType {
	t, err := camera.ParseCallbackType(c.GetCallback())
	if err != nil {
		return camera.CallbackDepth
	}
	return t
}

// GetFrameSize returns the requested output size, or the zero size to keep
// the sensor default.
func (c *CameraConfig) GetFrameSize() frame.FrameSize {
	if c.FrameWidth == nil || c.FrameHeight == nil {
		return frame.FrameSize{}
	}
	return frame.FrameSize{Width: uint32(*c.FrameWidth), Height: uint32(*c.FrameHeight)}
}

// GetFrameRate returns the requested rate in millihertz precision, or the
// zero rate to keep the sensor default.
func (c *CameraConfig) GetFrameRate() frame.FrameRate {
	if c.FrameRate == nil {
		return frame.FrameRate{}
	}
	fps := *c.FrameRate
	if fps == math.Trunc(fps) {
		return frame.FrameRate{Numerator: uint32(fps), Denominator: 1}
	}
	return frame.FrameRate{Numerator: uint32(math.Round(fps * 1000)), Denominator: 1000}
}

// GetBinning returns the merge factors, defaulting each to 1.
func (c *CameraConfig) GetBinning() (rows, cols uint32) {
	rows, cols = 1, 1
	if c.RowsToMerge != nil {
		rows = uint32(*c.RowsToMerge)
	}
	if c.ColsToMerge != nil {
		cols = uint32(*c.ColsToMerge)
	}
	return rows, cols
}

// GetPoolSizes returns the pool capacities; zero leaves the camera default.
func (c *CameraConfig) GetPoolSizes() PoolSizes {
	if c.PoolSizes == nil {
		return PoolSizes{}
	}
	return *c.PoolSizes
}

func (c *CameraConfig) GetCalibration() tof.Calibration {
	if c.Calibration == nil {
		return tof.Calibration{}
	}
	return *c.Calibration
}

func (c *CameraConfig) GetLens() tof.Lens {
	if c.Lens == nil {
		return tof.DefaultLens
	}
	return *c.Lens
}

func (c *CameraConfig) GetSessionDB() string {
	if c.SessionDB == nil || *c.SessionDB == "" {
		return "depthcam.db"
	}
	return *c.SessionDB
}

func (c *CameraConfig) GetDebugListen() string {
	if c.DebugListen == nil || *c.DebugListen == "" {
		return "localhost:8089"
	}
	return *c.DebugListen
}

func (c *CameraConfig) GetGRPCListen() string {
	if c.GRPCListen == nil || *c.GRPCListen == "" {
		return "localhost:50061"
	}
	return *c.GRPCListen
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *CameraConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}
