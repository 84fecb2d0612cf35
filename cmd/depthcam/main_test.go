package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/config"
	"github.com/banshee-data/depthcam/internal/db"
	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/testutil"
	"github.com/banshee-data/depthcam/internal/tof"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, "", *configPath)
	assert.False(t, *devMode)
	assert.False(t, *verbose)
	assert.False(t, *trace)
	assert.Equal(t, uint64(100), *logEvery)
}

func TestLoadConfig_Overrides(t *testing.T) {
	oldCB, oldDB := *callback, *dbPath
	t.Cleanup(func() { *callback, *dbPath = oldCB, oldDB })

	*callback = "pointcloud"
	*dbPath = "/tmp/other.db"
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, camera.CallbackPointCloud, cfg.GetCallbackType())
	assert.Equal(t, "/tmp/other.db", cfg.GetSessionDB())

	*callback = "histogram"
	_, err = loadConfig()
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestConfigureLogging(t *testing.T) {
	var buf bytes.Buffer
	configureLogging(&buf, false, false)
	t.Cleanup(func() { configureLogging(nil, false, false) })
	assert.Empty(t, buf.String())
}

func TestFrameCounter_DepthSummary(t *testing.T) {
	fc := newFrameCounter(0)
	d := &frame.DepthFrame{}
	d.Reset(frame.FrameSize{Width: 4, Height: 1})
	copy(d.Depth, []float32{0, 1, 2, 3})

	fc.callback(nil, d, camera.CallbackDepth)
	fc.callback(nil, &frame.PointCloudFrame{Points: make([]frame.Point, 5)}, camera.CallbackPointCloud)

	counts, points, last := fc.Snapshot()
	assert.Equal(t, uint64(1), counts[frame.KindDepth])
	assert.Equal(t, uint64(1), counts[frame.KindPointCloud])
	assert.Equal(t, uint64(5), points)
	assert.Equal(t, 3, last.Valid, "zero depth is masked")
	assert.InDelta(t, 1, last.Min, 1e-9)
	assert.InDelta(t, 3, last.Max, 1e-9)
	assert.InDelta(t, 2, last.Mean, 1e-9)
	assert.InDelta(t, 1, last.Std, 1e-9)

	empty := &frame.DepthFrame{}
	empty.Reset(frame.FrameSize{Width: 2, Height: 1})
	fc.callback(nil, empty, camera.CallbackDepth)
	_, _, last = fc.Snapshot()
	assert.Equal(t, depthSummary{}, last)
}

func TestApplyConfig(t *testing.T) {
	dev, cleanup, err := openDevice(context.Background(), &config.CameraConfig{})
	require.NoError(t, err)
	t.Cleanup(cleanup)
	cam, err := camera.New(dev)
	require.NoError(t, err)
	t.Cleanup(func() { cam.Close() })

	w, h, rows, cols, fps := 80, 60, 2, 2, 15.0
	cfg := &config.CameraConfig{
		FrameWidth: &w, FrameHeight: &h,
		RowsToMerge: &rows, ColsToMerge: &cols,
		FrameRate:  &fps,
		Parameters: map[string]any{tof.IntgTime: 25.0},
	}
	require.NoError(t, applyConfig(cam, cfg))

	size, err := cam.FrameSize()
	require.NoError(t, err)
	assert.Equal(t, frame.FrameSize{Width: 80, Height: 60}, size)
	r, c, err := cam.Binning()
	require.NoError(t, err)
	assert.Equal(t, [2]uint32{2, 2}, [2]uint32{r, c})
	rate, err := cam.FrameRate()
	require.NoError(t, err)
	assert.InDelta(t, 15, rate.FPS(), 1e-9)

	cfg = &config.CameraConfig{Parameters: map[string]any{"no_such_param": 1}}
	require.Error(t, applyConfig(cam, cfg))
}

func TestHealthServer(t *testing.T) {
	hs := newHealthServer()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go hs.serve(lis)
	t.Cleanup(hs.stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: healthService})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	hs.setServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
	hs.setServing(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}

func TestRun_RecordsSession(t *testing.T) {
	configureLogging(nil, false, false)
	dir := t.TempDir()
	dbFile := filepath.Join(dir, "sessions.db")
	local := "127.0.0.1:0"
	cb := "depth"
	cfg := &config.CameraConfig{
		SessionDB:   &dbFile,
		DebugListen: &local,
		GRPCListen:  &local,
		Callback:    &cb,
	}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, run(ctx, cfg))

	store, err := db.NewDB(dbFile)
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, "ti-tintin", s.Device)
	assert.Equal(t, "depth", s.CallbackType)
	require.NotNil(t, s.Stopped)

	stats, err := store.LatestStats(s.ID)
	require.NoError(t, err)
	assert.Greater(t, stats.Delivered, uint64(0))
	assert.Zero(t, stats.BuffersInUse)
}

func TestRun_ReleasesDebugServerOnError(t *testing.T) {
	configureLogging(nil, false, false)
	dbFile := filepath.Join(t.TempDir(), "sessions.db")

	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	debugAddr := free.Addr().String()
	require.NoError(t, free.Close())

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	grpcAddr := taken.Addr().String()

	cfg := &config.CameraConfig{
		SessionDB:   &dbFile,
		DebugListen: &debugAddr,
		GRPCListen:  &grpcAddr,
	}
	require.NoError(t, cfg.Validate())

	err = run(context.Background(), cfg)
	require.ErrorContains(t, err, "grpc listen")

	testutil.WaitFor(t, 5*time.Second, func() bool {
		l, err := net.Listen("tcp", debugAddr)
		if err != nil {
			return false
		}
		l.Close()
		return true
	}, "debug address released")

	store, err := db.NewDB(dbFile)
	require.NoError(t, err)
	defer store.Close()
	sessions, err := store.Sessions(10)
	require.NoError(t, err)
	assert.Empty(t, sessions, "no session starts when the listeners fail")
}
