package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file. Using existing environment variables.")
	}

	if lokiURL := os.Getenv("LOKI_URL"); lokiURL != "" {
		lokiClient = NewLokiClient(
			lokiURL,
			os.Getenv("LOKI_USERNAME"),
			os.Getenv("LOKI_PASSWORD"),
		)
	}

	gateway, err := NewGateway()
	if err != nil {
		logf := LoggingFormat{
			Type:    LogType.Startup,
			Level:   logrus.ErrorLevel,
			Message: "failed to create SMS gateway",
			Error:   err,
		}
		logf.Print()
		os.Exit(1)
	}

	if promListen := os.Getenv("PROMETHEUS_LISTEN"); promListen != "" {
		prometheus.MustRegister(NewMetricExporter(gateway))
		go func() {
			exporter := &PrometheusExporter{Path: "/metrics", Listen: promListen}
			if err := exporter.Start(); err != nil {
				logf := LoggingFormat{
					Type:    LogType.Startup,
					Level:   logrus.ErrorLevel,
					Message: "prometheus exporter stopped",
					Error:   err,
				}
				logf.Print()
			}
		}()
	}

	if err := gateway.startWebServer(); err != nil {
		logf := LoggingFormat{
			Type:    LogType.Startup,
			Level:   logrus.ErrorLevel,
			Message: "web server stopped",
			Error:   err,
		}
		logf.Print()
		os.Exit(1)
	}
}
