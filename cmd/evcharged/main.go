// Command evcharged runs the Alfen/Victron charging control daemon
// (spec.md §1). It loads a YAML configuration file, connects to the
// charger over Modbus TCP, and serves the local HTTP API until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evcharged/evcharged/internal/api"
	"github.com/evcharged/evcharged/internal/bus"
	"github.com/evcharged/evcharged/internal/charger"
	"github.com/evcharged/evcharged/internal/config"
	"github.com/evcharged/evcharged/internal/engine"
	"github.com/evcharged/evcharged/internal/modbus"
	"github.com/evcharged/evcharged/internal/priceclient"
)

func main() {
	var (
		configFile = flag.String("config", "config.yaml", "Configuration file path")
		dryRun     = flag.Bool("dry-run", false, "Connect and log decisions but never write a setpoint or phase count")
		infoOnly   = flag.Bool("info", false, "Connect once, print the charger's identity, and exit")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "[EVCHARGED] ", log.LstdFlags)

	if *infoOnly {
		if err := showChargerInfo(cfg, logger); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	logger.Printf("starting with mode=%s start_stop=%v modbus=%s:%d dry_run=%v",
		cfg.Mode, cfg.StartStop, cfg.Modbus.IP, cfg.Modbus.Port, *dryRun)

	transport := modbus.NewTransport(
		fmt.Sprintf("%s:%d", cfg.Modbus.IP, cfg.Modbus.Port),
		cfg.Modbus.ConnectTimeout,
		cfg.Modbus.KeepAlive,
		log.New(os.Stdout, "[MODBUS] ", log.LstdFlags),
	)

	var chargerTransport charger.Transport = transport
	if *dryRun {
		chargerTransport = &dryRunTransport{Transport: transport, logger: logger}
	}

	publisher := bus.NewMemoryBus()

	var priceClient *priceclient.Client
	if cfg.PriceFeed.Enabled && cfg.PriceFeed.EndpointURL != "" {
		priceClient = priceclient.NewClient(cfg.PriceFeed.EndpointURL, log.New(os.Stdout, "[PRICE] ", log.LstdFlags))
	}

	eng, err := engine.New(cfg, chargerTransport, transport, publisher, priceClient, 720, log.New(os.Stdout, "[ENGINE] ", log.LstdFlags))
	if err != nil {
		fmt.Println("Error building engine:", err)
		os.Exit(1)
	}
	if err := eng.Bootstrap(); err != nil {
		fmt.Println("Error during bootstrap:", err)
		os.Exit(1)
	}

	apiServer := api.NewServer(eng, api.ServerConfig{Listen: cfg.HTTPListen, BroadcastInterval: 5 * time.Second}, log.New(os.Stdout, "[API] ", log.LstdFlags))
	apiServer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	logger.Printf("running, press Ctrl+C to stop")
	<-sigChan
	logger.Printf("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("error shutting down API server: %v", err)
	}

	logger.Printf("stopped")
}

func showHelp() {
	fmt.Println("evcharged - Alfen/Victron charging control daemon")
	fmt.Println()
	fmt.Println("Usage: evcharged [flags]")
	fmt.Println()
	flag.PrintDefaults()
}

func showChargerInfo(cfg *config.Config, logger *log.Logger) error {
	transport := modbus.NewTransport(
		fmt.Sprintf("%s:%d", cfg.Modbus.IP, cfg.Modbus.Port),
		cfg.Modbus.ConnectTimeout,
		cfg.Modbus.KeepAlive,
		logger,
	)
	defer transport.Close()

	client := charger.NewClient(transport, byte(cfg.Modbus.SocketSlaveID), byte(cfg.Modbus.StationSlaveID))
	identity, err := client.ReadIdentity()
	if err != nil {
		return fmt.Errorf("read identity: %w", err)
	}
	maxCurrent, err := client.ReadStationMaxCurrent()
	if err != nil {
		return fmt.Errorf("read station max current: %w", err)
	}

	fmt.Printf("Product:    %s\n", identity.ProductName)
	fmt.Printf("Serial:     %s\n", identity.Serial)
	fmt.Printf("Firmware:   %s\n", identity.Firmware)
	fmt.Printf("Platform:   %s\n", identity.Platform)
	fmt.Printf("Max current: %.1f A\n", maxCurrent)
	return nil
}

// dryRunTransport lets the daemon run its full read/decide pipeline
// against a real charger while refusing every write, so an operator
// can watch decisions in the log before trusting it with the station.
type dryRunTransport struct {
	*modbus.Transport
	logger *log.Logger
}

func (d *dryRunTransport) WriteSingle(address uint16, value uint16, slaveID byte) error {
	d.logger.Printf("[DRY-RUN] would WriteSingle addr=%d value=%d slave=%d", address, value, slaveID)
	return nil
}

func (d *dryRunTransport) WriteMultiple(address uint16, values []byte, slaveID byte) error {
	d.logger.Printf("[DRY-RUN] would WriteMultiple addr=%d bytes=%d slave=%d", address, len(values), slaveID)
	return nil
}
