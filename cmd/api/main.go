package main

import (
	"flag"
	"os"
	"time"

	"vatproof/internal/api"

	"github.com/sirupsen/logrus"
)

func main() {
	step := flag.Duration("step", time.Second, "Time the simulation takes to move one VAT number forward")
	preview := flag.Int("preview", 5, "Number of lines echoed back by verify-paste")
	debug := flag.Bool("debug", false, "Log every request")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}

	srv := api.NewServer(api.Options{Step: *step, PreviewSize: *preview})
	defer srv.Close()

	logrus.Infof("API server listening on :%s", port)
	if err := srv.Run(port); err != nil {
		logrus.Fatalf("server stopped with error: %v", err)
	}
}
