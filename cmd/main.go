package main

import (
	"bufio"
	"context"
	"cwregen"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// 1. 解析命令行参数
	configFile := flag.String("config", "", "YAML config file")
	inputFile := flag.String("file", "", "Sample CSV file to replay (\"-\" for stdin, *.zst supported)")
	serialPort := flag.String("serial", "", "Serial port streaming sample CSV lines")
	debugFile := flag.String("debug", "", "Write per-tick debug CSV to this file")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9108)")
	flag.Parse()

	cfg := cwregen.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = cwregen.LoadConfig(*configFile); err != nil {
			log.Fatalf("Config load failed: %v", err)
		}
	}
	if *inputFile != "" {
		cfg.Source.File = *inputFile
	}
	if *serialPort != "" {
		cfg.Source.SerialPort = *serialPort
		if *inputFile == "" {
			cfg.Source.File = ""
		}
	}
	if *debugFile != "" {
		cfg.Debug.CsvFile = *debugFile
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}

	// 2. 初始化系统
	system, err := cwregen.NewRegenSystem(cfg)
	if err != nil {
		log.Fatalf("System init failed: %v", err)
	}
	system.OnText = func(text string) {
		fmt.Print(text)
	}

	reg := prometheus.NewRegistry()
	system.SetMetrics(cwregen.NewMetrics(reg))
	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: cwregen.MetricsHandler(reg)}
		go func() {
			log.Printf("[METRICS] Listening on %s", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[METRICS] Server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	if cfg.Debug.CsvFile != "" {
		d, err := cwregen.NewCsvFileDebugger(cfg.Debug.CsvFile, cfg.Decoder.MaxElements)
		if err != nil {
			log.Fatalf("Debug file failed: %v", err)
		}
		system.SetDebugger(d)
	}

	if cfg.MQTT.Broker != "" {
		pub, err := cwregen.NewMQTTPublisher(cfg)
		if err != nil {
			log.Printf("[MQTT] Disabled: %v", err)
		} else {
			system.SetWordSink(pub)
			defer pub.Close()
		}
	}

	// 3. 打开样本来源
	var src cwregen.SampleSource
	interactive := true
	switch {
	case cfg.Source.File != "":
		src, err = cwregen.OpenFileSource(cfg.Source.File)
		interactive = cfg.Source.File != "-"
	case cfg.Source.SerialPort != "":
		log.Printf("[SOURCE] Opening %s at %d baud", cfg.Source.SerialPort, cfg.Source.BaudRate)
		src, err = cwregen.OpenSerialSource(cfg.Source.SerialPort, cfg.Source.BaudRate)
	default:
		err = errors.New("no sample source configured")
	}
	if err != nil {
		log.Fatalf("Source failed: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	system.Start(ctx)

	// 4. 主循环 (处理信号、来源结束和控制台输入)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- system.Run(ctx, src)
	}()

	// stdin 被样本占用时不读控制台
	if interactive {
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("System Ready. (Type 'exit' to quit)")

			for scanner.Scan() {
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if strings.ToLower(input) == "exit" || strings.ToLower(input) == "quit" {
					sigChan <- os.Interrupt
					return
				}
				system.HandleInput(input)
			}
		}()
	}

	select {
	case <-sigChan:
		fmt.Println("\nShutting down...")
	case err := <-done:
		if err != nil {
			log.Printf("[SOURCE] Stopped: %v", err)
		}
		fmt.Println()
	}
	system.Stop()
	log.Printf("[SYSTEM] %s", system.Summary())
}
