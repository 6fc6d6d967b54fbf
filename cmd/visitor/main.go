// Command visitor replays a synthetic visit to the washday site against a
// running API: it loads the catalog, scrolls the landing page and a service
// page, and lets the instrumentation report what a browser would.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	cfg := defaultConfig()
	pflag.StringVar(&cfg.PrefsPath, "prefs", envOr("VISITOR_PREFS_PATH", cfg.PrefsPath), "SQLite file holding the visitor's preferences")
	pflag.Float64Var(&cfg.Viewport, "viewport", cfg.Viewport, "viewport height in pixels")
	pflag.DurationVar(&cfg.StepDelay, "step-delay", cfg.StepDelay, "pause between scroll steps")
	pflag.DurationVar(&cfg.TagDelay, "gtag-delay", cfg.TagDelay, "how long the tag-manager script takes to load")
	pflag.BoolVar(&cfg.ToggleTheme, "toggle-theme", false, "flip the stored theme before browsing")
	pflag.BoolVar(&cfg.PlaceOrder, "order", false, "place an order for the first service")
	pflag.StringVar(&cfg.ActorID, "actor-id", "", "signed-in customer id; empty browses anonymously")
	pflag.StringVar(&cfg.ActorName, "actor-name", "", "signed-in customer name")
	pflag.StringVar(&cfg.ConversionTarget, "conversion-target", os.Getenv("GTAG_CONVERSION_TARGET"), "tag-manager send_to for orders")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Visit failed: %v", err)
	}
	log.Printf("Visit finished in %s", time.Since(start).Round(time.Millisecond))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
