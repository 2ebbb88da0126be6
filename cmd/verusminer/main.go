package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/verus-community/verusminer/internal/config"
	"github.com/verus-community/verusminer/internal/cpufeature"
	"github.com/verus-community/verusminer/internal/minerlog"
	"github.com/verus-community/verusminer/internal/mining"
	"github.com/verus-community/verusminer/internal/statsapi"
	"github.com/verus-community/verusminer/internal/stratum"
)

const (
	AppVersion = "1.0.0"
	AppName    = "verusminer"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config file")
	pool := flag.String("pool", "", "Stratum pool host:port")
	username := flag.String("user", "", "Pool worker name (address.workername)")
	password := flag.String("pass", "", "Pool worker password (default from config, \"x\")")
	threads := flag.Int("threads", 0, "Number of mining threads (0 = all CPUs)")
	statsAddr := flag.String("stats-addr", "", "Stats HTTP API address, e.g. 127.0.0.1:4028")
	logLevel := flag.String("loglevel", "", "Log level: trace/debug/info/warn/error/critical/off")
	showVersion := flag.Bool("version", false, "Show version")

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		os.Exit(0)
	}

	printBanner()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *pool != "" {
		cfg.Pool = *pool
	}
	if *username != "" {
		cfg.Username = *username
	}
	if *password != "" {
		cfg.Password = *password
	}
	if *threads > 0 {
		cfg.Threads = *threads
	}
	if *statsAddr != "" {
		cfg.StatsAPIAddr = *statsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Println()
		fmt.Println("Provide a pool and username:")
		fmt.Println("  verusminer -pool stratum.pool.example:9998 -user RYourAddress.worker1")
		os.Exit(1)
	}

	applyLogLevel(cfg.LogLevel)
	log := minerlog.Subsystem("MAIN")

	feat := cpufeature.Detect()
	log.Infof("cpu features: aes=%v avx=%v avx2=%v pclmulqdq=%v", feat.AES, feat.AVX, feat.AVX2, feat.PCLMULQDQ)
	log.Infof("pool: %s  user: %s  threads: %d", cfg.Pool, cfg.Username, cfg.Threads)

	host, port, err := splitHostPort(cfg.Pool)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	startedAt := time.Now()
	stop := make(chan struct{})

	go runWithReconnect(cfg, host, port, log, stop)

	if cfg.StatsAPIAddr != "" {
		log.Infof("stats API listening on %s", cfg.StatsAPIAddr)
	}

	<-sigCh
	fmt.Println("\nStopping miner...")
	close(stop)
	_ = startedAt
}

// runWithReconnect owns the reconnect-with-backoff loop: each pass builds a
// fresh Client and Engine (a Client is single-use once its connection
// drops), mirroring dilithium-miner's node_runner.go retry pattern.
func runWithReconnect(cfg config.Config, host string, port uint16, log minerlog.Logger, stop <-chan struct{}) {
	backoff := cfg.ReconnectInitialBackoff

	for {
		select {
		case <-stop:
			return
		default:
		}

		client := stratum.New(stratum.Config{
			Host:         host,
			Port:         port,
			Username:     cfg.Username,
			Password:     cfg.Password,
			Agent:        AppName + "/" + AppVersion,
			DialTimeout:  10 * time.Second,
		}, minerlog.Subsystem("STRT"))

		engine := mining.New(client, cfg.Username, cfg.Threads, minerlog.Subsystem("MINE"))
		engine.Start()

		if cfg.StatsAPIAddr != "" {
			srv := statsapi.New(engine, client, time.Now())
			go func() {
				if err := srv.ListenAndServe(cfg.StatsAPIAddr); err != nil {
					log.Warnf("stats API stopped: %v", err)
				}
			}()
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := client.Run(); err != nil {
				log.Warnf("pool connection lost: %v", err)
			}
		}()

		select {
		case <-stop:
			engine.Stop()
			client.Close()
			return
		case <-done:
			engine.Stop()
		}

		log.Infof("reconnecting in %s", backoff)
		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > cfg.ReconnectMaxBackoff {
			backoff = cfg.ReconnectMaxBackoff
		}
	}
}

func splitHostPort(pool string) (string, uint16, error) {
	idx := strings.LastIndex(pool, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("pool must be host:port, got %q", pool)
	}
	host := pool[:idx]
	var port uint16
	if _, err := fmt.Sscanf(pool[idx+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("bad pool port in %q: %w", pool, err)
	}
	return host, port, nil
}

func applyLogLevel(level string) {
	lvl, ok := btclog.LevelFromString(strings.ToLower(level))
	if !ok {
		lvl = btclog.LevelInfo
	}
	minerlog.SetLevel(lvl)
}

func printBanner() {
	fmt.Printf(`
 __   __                      __  __ _
 \ \ / /__ _ __ _   _ ___    |  \/  (_)_ __   ___ _ __
  \ V / _ \ '__| | | / __|   | |\/| | | '_ \ / _ \ '__|
   | |  __/ |  | |_| \__ \   | |  | | | | | |  __/ |
   |_|\___|_|   \__,_|___/   |_|  |_|_|_| |_|\___|_|
                      CPU Miner v%s

`, AppVersion)
}
