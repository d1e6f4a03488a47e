package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eucdash/wheelcore/internal/config"
	"github.com/eucdash/wheelcore/internal/csvlog"
	"github.com/eucdash/wheelcore/internal/telemetryserver"
	"github.com/eucdash/wheelcore/internal/transport"
	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/alarm"
	"github.com/eucdash/wheelcore/internal/wheel/connection"
	"github.com/eucdash/wheelcore/internal/wheel/decoder"
	"github.com/eucdash/wheelcore/internal/wheel/energy"
)

func main() {
	configPath := flag.String("config", "/etc/wheelcore/config.yaml", "Path to config file")
	address := flag.String("address", "", "BLE address (or serial port path with -transport=serial)")
	wheelType := flag.String("wheel-type", "", "Vendor hint: Kingsong/Gotway/Veteran/Ninebot/NinebotZ/InMotion/InMotionV2 (unknown if omitted)")
	transportKind := flag.String("transport", "ble", "Transport to use: ble or serial")
	listenAddr := flag.String("listen", "", "Override telemetry server listen address (e.g. :8080)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logrus.NewEntry(log)
	entry.Info("wheelcored starting")

	cfg := config.LoadConfig(*configPath)
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		entry.WithField("signal", sig).Info("shutting down")
		cancel()
	}()

	var xport connection.Transport
	switch *transportKind {
	case "serial":
		xport = transport.NewSerial(0, entry.WithField("component", "transport"))
	default:
		xport = transport.NewBLE(entry.WithField("component", "transport"))
	}

	hint := wheel.ParseWheelType(*wheelType)

	decoderCfg := decoder.Config{InMiles: cfg.CSV.InMiles}
	mgr := connection.NewManager(xport, newDecoderFactory, decoderCfg, entry.WithField("component", "connection"))

	mgr.AttachLogSink(ctx, csvlog.New(csvlog.Config{
		Enabled: cfg.CSV.Enabled,
		Dir:     cfg.CSV.Dir,
		InMiles: cfg.CSV.InMiles,
	}, entry.WithField("component", "csvlog")))

	alarmChecker := alarm.NewChecker()
	energyCalc := energy.NewCalculator()

	telSrv := telemetryserver.New(cfg.Server.ListenAddr, entry.WithField("component", "telemetryserver"))
	go runTelemetryLoop(ctx, mgr, telSrv, alarmChecker, energyCalc, cfg)

	if *address != "" {
		if err := mgr.Connect(*address, hint); err != nil {
			entry.WithError(err).Warn("initial connect failed; back-off reconnect runs only after a transport rejection")
		}
	}

	if err := telSrv.Run(ctx); err != nil {
		entry.WithError(err).Warn("telemetry server exited")
	}
}

// newDecoderFactory maps a vendor hint to the matching decoder.
// WheelTypeUnknown yields an AutoDetect decoder, which classifies
// between the Gotway/Veteran wire formats on first bytes; the remaining
// five vendors require an explicit hint since their frame headers
// aren't mutually distinguishable that way.
func newDecoderFactory(hint wheel.WheelType) decoder.Decoder {
	switch hint {
	case wheel.WheelTypeKingsong:
		return decoder.NewKingsong()
	case wheel.WheelTypeGotway:
		return decoder.NewGotway()
	case wheel.WheelTypeVeteran:
		return decoder.NewVeteran()
	case wheel.WheelTypeNinebot:
		return decoder.NewNinebot()
	case wheel.WheelTypeNinebotZ:
		return decoder.NewNinebotZ()
	case wheel.WheelTypeInMotion:
		return decoder.NewInMotionV1()
	case wheel.WheelTypeInMotionV2:
		return decoder.NewInMotionV2()
	default:
		return decoder.NewAutoDetect()
	}
}

// runTelemetryLoop bridges the connection manager's observable streams
// into the telemetry server's broadcast frames, running the
// AlarmChecker and EnergyCalculator over every published WheelState.
func runTelemetryLoop(ctx context.Context, mgr *connection.Manager, srv *telemetryserver.Server, checker *alarm.Checker, calc *energy.Calculator, cfg *config.Config) {
	wheelCh := mgr.SubscribeWheelState()
	connCh := mgr.SubscribeConnectionState()

	var lastConnState string
	for {
		select {
		case <-ctx.Done():
			return
		case cs, ok := <-connCh:
			if !ok {
				return
			}
			lastConnState = connStateLabel(cs)
			srv.Broadcast(telemetryserver.Frame{ConnectionState: lastConnState, Stamp: time.Now().UnixMilli()})
		case state, ok := <-wheelCh:
			if !ok {
				return
			}
			now := time.Now()
			calc.PushSample(float64(state.Power)/100, float64(state.WheelDistance), now)
			result := checker.Evaluate(state, cfg.Alarm.ToAlarmConfig(), now)
			srv.Broadcast(telemetryserver.Frame{
				WheelState:      state,
				ConnectionState: lastConnState,
				Alarm:           &result,
				Stamp:           now.UnixMilli(),
			})
		}
	}
}

func connStateLabel(s wheel.ConnectionState) string {
	switch v := s.(type) {
	case wheel.Disconnected:
		return "disconnected"
	case wheel.Scanning:
		return "scanning"
	case wheel.Connecting:
		return "connecting:" + v.Address
	case wheel.DiscoveringServices:
		return "discovering:" + v.Address
	case wheel.Connected:
		return "connected:" + v.WheelName
	case wheel.ConnectionLost:
		return "lost:" + v.Address
	case wheel.Failed:
		return "failed:" + v.Address
	default:
		return "unknown"
	}
}
