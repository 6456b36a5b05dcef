package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

var (
	version     = flag.Bool("version", false, "Print version info")
	help        = flag.Bool("help", false, "Print help")
	logLevel    = flag.Int("log", 3, "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	redisServer = flag.String("redis_server", "127.0.0.1", "Redis server address")
	redisPort   = flag.Int("redis_port", 6379, "Redis server port")
	canDevice   = flag.String("can_device", "", "CAN device name (overrides config)")
	configPath  = flag.String("config", "motors.yaml", "Fleet configuration file")
	mode        = flag.String("mode", "", "Operation (move, simultaneous, sweep, observe, zero, scan)")

	targets     = flag.String("targets", "", "Position targets, e.g. \"1=0.5,2=-0.3\" (rad)")
	tolerance   = flag.Float64("tolerance", 0.01, "Convergence tolerance (rad)")
	stepTimeout = flag.Int("step_timeout", 2000, "Per-step timeout (ms)")
	holdTime    = flag.Int("hold", 0, "Hold at target before disabling (ms)")

	motorID    = flag.Uint("motor", 0, "Motor ID for sweep/observe/zero")
	sweepStart = flag.Float64("start", 0, "Sweep start angle (rad)")
	sweepEnd   = flag.Float64("end", 0, "Sweep end angle (rad)")
	sweepStep  = flag.Float64("step", 0.1, "Sweep increment (rad)")
)

const (
	ProjectName    = "motor-service"
	ProjectVersion = "1.0.0"
)

func printVersion() {
	fmt.Printf("%s v%s\n", ProjectName, ProjectVersion)
}

func printHelp() {
	printVersion()
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	if *logLevel < 0 || *logLevel > 4 {
		log.Fatalf("invalid log level %d", *logLevel)
	}

	switch Mode(*mode) {
	case ModeMove, ModeSimultaneous, ModeSweep, ModeObserve, ModeZero, ModeScan:
	case "":
		printHelp()
		log.Fatalf("no mode given")
	default:
		log.Fatalf("invalid mode %q", *mode)
	}

	opts := &Options{
		LogLevel:        LogLevel(*logLevel),
		RedisServerAddr: *redisServer,
		RedisServerPort: uint16(*redisPort),
		CANDevice:       *canDevice,
		ConfigPath:      *configPath,
		Mode:            Mode(*mode),
		Targets:         *targets,
		ToleranceRad:    *tolerance,
		StepTimeout:     *stepTimeout,
		HoldTime:        *holdTime,
		MotorID:         *motorID,
		SweepStart:      *sweepStart,
		SweepEnd:        *sweepEnd,
		SweepStep:       *sweepStep,
	}

	app, err := NewMotionApp(opts)
	if err != nil {
		log.Fatalf("failed to create motion app: %v", err)
	}

	// SIGINT/SIGTERM cancels the running operation; teardown still
	// disables every motor.
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	err = app.Run(ctx, opts)
	app.Destroy()

	if err != nil && err != context.Canceled {
		log.Fatalf("%s failed: %v", opts.Mode, err)
	}
}
