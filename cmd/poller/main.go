package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vatproof/internal/client"
	"vatproof/internal/config"
	"vatproof/internal/ingest"
	"vatproof/internal/poller"
	"vatproof/internal/sink"
	"vatproof/internal/status"

	"github.com/sirupsen/logrus"
)

// systemCheckInterval is how often backend health is re-checked while polling.
const systemCheckInterval = 30 * time.Second

var errJobFailed = errors.New("verification job failed")

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	jobFlag := flag.String("job", "", "Track an existing job instead of submitting a list")
	filePath := flag.String("file", "", "VAT list to submit (.txt, .csv, .xlsx)")
	pasteFlag := flag.String("paste", "", "VAT numbers to submit, one per line")
	cancelOnInterrupt := flag.Bool("cancel-on-interrupt", false, "Cancel the backend job when interrupted")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logrus.Fatalf("failed to load config: %v", err)
		}
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}

	// Prepare cancellable context that listens to OS signals (Ctrl+C).
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("interrupt received, shutting down gracefully…")
		cancel()
	}()

	cli, err := client.Dial(ctx, cfg.APIBaseURL, cfg.Retry)
	if err != nil {
		logrus.Fatalf("backend unreachable: %v", err)
	}

	jobID, err := resolveJob(ctx, cfg, cli, *jobFlag, *filePath, *pasteFlag)
	if err != nil {
		logrus.Fatalf("failed to start verification: %v", err)
	}

	var sk sink.Sink
	switch cfg.Storage.Type {
	case "csv":
		s, err := sink.NewCSVSink(cfg.Storage.CSV.OutputDir)
		if err != nil {
			logrus.Fatalf("failed to initialise csv sink: %v", err)
		}
		sk = sink.NewRetrySink(s, cfg.Retry.Attempts, cfg.Retry.DelayMS)
		defer sk.Close()
	case "none":
	}

	done := make(chan error, 1)
	p := poller.New(cli, poller.Multi(reportListener(done), sink.NewProgressRecorder(sk)), poller.OptionsFromConfig(cfg))

	go watchSystem(ctx, cli)
	p.Start(ctx, jobID)

	select {
	case err = <-done:
	case <-ctx.Done():
		p.Stop()
		err = ctx.Err()
		if *cancelOnInterrupt {
			cancelJob(cli, jobID)
		}
	}

	if err != nil {
		if sk != nil {
			sk.Close()
		}
		logrus.WithField("job_id", jobID).Fatalf("verification did not complete: %v", err)
	}
}

// resolveJob returns the job to track: the one given on the command line or
// a new one created from a file or pasted list.
func resolveJob(ctx context.Context, cfg *config.Config, cli *client.Client, job, file, paste string) (status.JobID, error) {
	if job != "" {
		return status.JobID(job), nil
	}

	var (
		list *ingest.List
		err  error
	)
	switch {
	case file != "":
		list, err = ingest.NewValidator(cfg.Ingest).ReadFile(file)
	case paste != "":
		list, err = ingest.ParseText(paste)
	default:
		return "", fmt.Errorf("one of -job, -file or -paste is required")
	}
	if err != nil {
		return "", err
	}
	if list.Truncated {
		logrus.Warnf("list truncated to %d numbers", ingest.MaxLines)
	}

	for _, row := range ingest.Preview(list.Numbers, cfg.Ingest.PreviewSize) {
		logrus.Infof("  %3d  %-20s %s", row.Index, row.VAT, row.CountryCode)
	}
	if n := len(list.Numbers); n > cfg.Ingest.PreviewSize {
		logrus.Infof("  preview of the first %d numbers out of %d", cfg.Ingest.PreviewSize, n)
	}

	res, err := cli.VerifyPaste(ctx, list.Content())
	if err != nil {
		return "", err
	}
	logrus.WithField("job_id", res.JobID).Infof("verification submitted: %s", res.Message)
	return res.JobID, nil
}

func reportListener(done chan<- error) poller.Listener {
	return poller.Funcs{
		Progress: func(jobID status.JobID, snap status.Snapshot) {
			pending := snap.Pending
			if pending < 0 {
				pending = 0
			}
			logrus.WithField("job_id", jobID).Infof("[%3d%%] pending=%d processing=%d completed=%d errors=%d",
				snap.Percentage, pending, snap.InProgress, snap.Completed, snap.Failed)
		},
		Completed: func(jobID status.JobID, payload *status.Payload) {
			logrus.WithField("job_id", jobID).Info("verification completed, results are ready for download")
			done <- nil
		},
		Failed: func(jobID status.JobID, payload *status.Payload) {
			done <- errJobFailed
		},
	}
}

// watchSystem logs backend health changes until ctx ends.
func watchSystem(ctx context.Context, cli *client.Client) {
	ticker := time.NewTicker(systemCheckInterval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := cli.SystemStatus(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			if healthy {
				logrus.Warnf("backend offline: %v", err)
			}
			healthy = false
		case err == nil && !st.Healthy():
			if healthy {
				logrus.Warnf("backend degraded: %s", st.Status)
			}
			healthy = false
		case err == nil:
			if !healthy {
				logrus.Info("backend back online")
			}
			healthy = true
		}
	}
}

func cancelJob(cli *client.Client, jobID status.JobID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.CancelJob(ctx, jobID); err != nil {
		logrus.WithField("job_id", jobID).Warnf("failed to cancel job: %v", err)
		return
	}
	logrus.WithField("job_id", jobID).Info("job cancelled")
}
