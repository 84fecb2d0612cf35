package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/config"
	"github.com/banshee-data/depthcam/internal/db"
	"github.com/banshee-data/depthcam/internal/frame"
	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/regio"
	"github.com/banshee-data/depthcam/internal/serialmux"
	"github.com/banshee-data/depthcam/internal/streamer"
	"github.com/banshee-data/depthcam/internal/tof"
	"github.com/banshee-data/depthcam/internal/version"
)

var (
	configPath  = flag.String("config", "", "Camera configuration file (.json, .yaml or .yml)")
	devMode     = flag.Bool("dev", false, "Use the simulated device regardless of the config")
	listen      = flag.String("listen", "", "Debug HTTP listen address (overrides config)")
	grpcListen  = flag.String("grpc", "", "gRPC health listen address (overrides config)")
	dbPath      = flag.String("db", "", "Capture session database path (overrides config)")
	callback    = flag.String("callback", "", "Callback type: raw, raw_processed, depth or pointcloud (overrides config)")
	verbose     = flag.Bool("v", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable per-frame trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
	logEvery    = flag.Uint64("log-every", 100, "Log a frame summary every N deliveries (0 disables)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: depthcam [flags]\n       depthcam migrate <action>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], cfg.GetSessionDB()); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	configureLogging(os.Stderr, *verbose, *trace)
	log.Print(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads -config and applies the command-line overrides.
func loadConfig() (*config.CameraConfig, error) {
	cfg := &config.CameraConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	override := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	if *devMode {
		sim := config.DeviceSimulated
		cfg.Device = &sim
	}
	override(&cfg.DebugListen, *listen)
	override(&cfg.GRPCListen, *grpcListen)
	override(&cfg.SessionDB, *dbPath)
	override(&cfg.Callback, *callback)
	return cfg, cfg.Validate()
}

func configureLogging(w io.Writer, verbose, trace bool) {
	var diag, tr io.Writer
	if verbose {
		diag = w
	}
	if trace {
		tr = w
	}
	camera.SetLogWriters(w, diag, tr)
	tof.SetLogWriters(w, diag, tr)
	monitoring.SetWriter(w, "")
}

// openDevice builds the register programmer and tof device the config names.
// The returned cleanup closes the control link.
func openDevice(ctx context.Context, cfg *config.CameraConfig) (*tof.Camera, func(), error) {
	gen, err := tof.ParseGeneration(cfg.GetGeneration())
	if err != nil {
		return nil, nil, err
	}

	var prog regio.Programmer
	cleanup := func() {}
	switch cfg.GetDevice() {
	case config.DeviceSerial:
		mux, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.GetPortOptions())
		if err != nil {
			return nil, nil, err
		}
		monCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := mux.Monitor(monCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial monitor: %v", err)
			}
		}()
		prog = regio.NewSerialProgrammer(mux, 0)
		cleanup = func() {
			cancel()
			<-done
			if err := mux.Close(); err != nil {
				log.Printf("close %s: %v", cfg.GetSerialPort(), err)
			}
		}
	default:
		prog = tof.NewSimulatedProgrammer(gen)
	}

	// The data plane stays synthetic; only the register link is real.
	strm, err := streamer.NewSynthetic(streamer.SyntheticOptions{
		Size: gen.SensorSize(),
		Rate: frame.FrameRate{Numerator: 30, Denominator: 1},
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	dev := tof.New(gen, regio.NewBus(prog), strm, tof.Options{
		Calibration: cfg.GetCalibration(),
		Lens:        cfg.GetLens(),
	})
	return dev, cleanup, nil
}

// applyConfig pushes the configured geometry, rate and parameters into an
// initialised camera.
func applyConfig(cam *camera.Camera, cfg *config.CameraConfig) error {
	if size := cfg.GetFrameSize(); !size.IsZero() {
		if err := cam.SetFrameSize(size, true); err != nil {
			return fmt.Errorf("frame size %s: %w", size, err)
		}
		if cfg.RowsToMerge != nil || cfg.ColsToMerge != nil {
			rows, cols := cfg.GetBinning()
			if err := cam.SetBinning(rows, cols, size); err != nil {
				return fmt.Errorf("binning %dx%d: %w", rows, cols, err)
			}
		}
	}
	if rate := cfg.GetFrameRate(); rate.Denominator != 0 {
		if err := cam.SetFrameRate(rate); err != nil {
			return fmt.Errorf("frame rate %s: %w", rate, err)
		}
	}
	if err := cam.SetParameters(cfg.Parameters); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	return nil
}

// run captures until ctx is cancelled.
func run(ctx context.Context, cfg *config.CameraConfig) (err error) {
	sessions, err := db.NewDB(cfg.GetSessionDB())
	if err != nil {
		return fmt.Errorf("session db: %w", err)
	}
	defer sessions.Close()

	dev, closeDevice, err := openDevice(ctx, cfg)
	if err != nil {
		return fmt.Errorf("device: %w", err)
	}
	defer closeDevice()

	var sessionID string
	pools := cfg.GetPoolSizes()
	cam, err := camera.New(dev,
		camera.WithPoolSizes(pools.Raw, pools.Depth, pools.PointCloud),
		camera.WithStatsSink(cfg.GetStatsInterval(), func(s camera.Stats) {
			if sessionID == "" {
				return
			}
			if err := sessions.RecordStats(sessionID, s); err != nil {
				log.Printf("record stats: %v", err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	defer func() {
		if cerr := cam.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close camera: %w", cerr))
		}
	}()
	if err := applyConfig(cam, cfg); err != nil {
		return err
	}

	counter := newFrameCounter(*logEvery)
	cbType := cfg.GetCallbackType()
	if err := cam.RegisterCallback(cbType, counter.callback); err != nil {
		return err
	}

	// Debug HTTP surface.
	mux := http.NewServeMux()
	cam.AttachAdminRoutes(mux)
	if err := sessions.AttachAdminRoutes(mux); err != nil {
		return err
	}
	debugLis, err := net.Listen("tcp", cfg.GetDebugListen())
	if err != nil {
		return fmt.Errorf("debug listen: %w", err)
	}
	httpSrv := &http.Server{Handler: mux}
	go func() {
		if err := httpSrv.Serve(debugLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("debug server: %v", err)
		}
	}()
	defer shutdownHTTP(httpSrv)

	// gRPC health.
	health := newHealthServer()
	lis, err := net.Listen("tcp", cfg.GetGRPCListen())
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go health.serve(lis)
	defer health.stop()
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	// The session row exists before the first stats report.
	sessionID, err = sessions.StartSession(cam.ID(), dev.Name(), cbType)
	if err != nil {
		return err
	}
	if err := cam.Start(); err != nil {
		err = fmt.Errorf("start: %w", err)
		if eerr := sessions.EndSession(sessionID); eerr != nil {
			err = errors.Join(err, fmt.Errorf("end session: %w", eerr))
		}
		return err
	}
	go health.watch(watchCtx, cam, time.Second)
	log.Printf("capturing %s frames from %s (session %s)", cbType, dev.Name(), sessionID)

	<-ctx.Done()
	log.Print("shutting down capture...")

	cam.Stop()
	waitErr := cam.Wait()
	stopWatch()
	health.setServing(false)

	if err := sessions.RecordStats(sessionID, cam.Stats()); err != nil {
		log.Printf("record stats: %v", err)
	}
	if err := sessions.EndSession(sessionID); err != nil {
		log.Printf("end session: %v", err)
	}

	counts, points, last := counter.Snapshot()
	log.Printf("delivered %v (%d points), last depth summary %+v", counts, points, last)

	return waitErr
}

// shutdownHTTP gives in-flight debug requests five seconds to finish.
func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("debug server shutdown: %v", err)
	}
}
