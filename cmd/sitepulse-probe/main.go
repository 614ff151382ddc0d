// Command sitepulse-probe simulates consenting visitors against a running
// sitepulse server and prints the resulting summary. It is meant for smoke
// testing a deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/sitepulse/pkg/consent"
	"github.com/platinummonkey/sitepulse/pkg/session"
	"github.com/platinummonkey/sitepulse/pkg/tracker"
)

func main() {
	baseURL := flag.String("url", getEnv("SITEPULSE_URL", "http://localhost:8080"), "sitepulse base URL")
	visitors := flag.Int("visitors", 3, "Number of simulated visitors")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	client := &http.Client{Timeout: 10 * time.Second}
	sender := tracker.NewHTTPSender(*baseURL, client)

	for i := 0; i < *visitors; i++ {
		if err := simulateVisit(sender, logger, i); err != nil {
			logger.WithError(err).WithField("visitor", i).Error("Visit failed")
			os.Exit(1)
		}
	}

	if err := printSummary(*baseURL, client); err != nil {
		logger.WithError(err).Error("Failed to fetch summary")
		os.Exit(1)
	}
}

func simulateVisit(sender tracker.Sender, logger *logrus.Logger, n int) error {
	storage := consent.NewMemoryStorage()
	mgr := consent.NewManager(storage, consent.NewBus(), nil)
	allocator := session.NewAllocator(storage)

	t := tracker.New(mgr, allocator, sender, tracker.Config{
		Viewport: func() (int, int) { return 1440, 900 },
		Logger:   logger.WithField("visitor", n),
	})

	sessionID := allocator.ID()
	mgr.Init(false)
	mgr.Accept()

	t.TrackPageView("/")
	observer := tracker.NewSectionObserver(t, nil, 50*time.Millisecond)
	for _, section := range []string{"hero", "services", "portfolio"} {
		observer.Visible(section)
	}
	time.Sleep(100 * time.Millisecond)

	if n%2 == 0 {
		t.TrackPageView("/contact")
		t.TrackFormView()
		t.TrackFormSubmit("web-app")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := t.Wait(ctx); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{"visitor": n, "session_id": sessionID}).Info("Visit simulated")
	return nil
}

func printSummary(baseURL string, client *http.Client) error {
	resp, err := client.Get(baseURL + "/analytics")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}
	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
