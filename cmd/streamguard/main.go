package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamguard/streamguard/pkg/analytics"
	"github.com/streamguard/streamguard/pkg/config"
	"github.com/streamguard/streamguard/pkg/engine"
	"github.com/streamguard/streamguard/pkg/escalation"
	"github.com/streamguard/streamguard/pkg/export"
	"github.com/streamguard/streamguard/pkg/moderation"
	"github.com/streamguard/streamguard/pkg/patterns"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cfg := config.NewDefaultConfig()
		if len(os.Args) > 2 {
			cfg.ListenAddr = ":" + os.Args[2]
		}
		runServer(cfg)
	case "check":
		if len(os.Args) < 3 {
			fmt.Println("Usage: streamguard check <text>")
			os.Exit(1)
		}
		runCLICheck(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("StreamGuard v%s\n", Version)
		fmt.Println("Real-time chat moderation decision engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("StreamGuard v%s - real-time chat moderation decision engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  streamguard serve [port]   Start HTTP server (default: 3000)")
	fmt.Println("  streamguard check <text>   Run one message through the pipeline")
	fmt.Println("  streamguard version        Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  STREAMGUARD_PATTERN_FILE        YAML pattern set (default: built-ins)")
	fmt.Println("  STREAMGUARD_ADVANCED_PATTERNS   Enable pattern matcher (default: true)")
	fmt.Println("  STREAMGUARD_REDIS_ADDR          Redis snapshot export (default: off)")
	fmt.Println("  STREAMGUARD_POSTGRES_DSN        Postgres audit trail (default: off)")
}

// buildEngine assembles the decision pipeline from config. A broken pattern
// file degrades to base-rule-only moderation rather than failing open.
func buildEngine(cfg *config.Config) *engine.Engine {
	var store *patterns.Store
	storeOpts := []patterns.StoreOption{
		patterns.WithMaxCompareLen(cfg.MaxCompareLen),
		patterns.WithMinSamples(int64(cfg.MinPatternSamples)),
	}

	enhanced := cfg.EnableAdvancedPatterns
	if cfg.PatternFile != "" {
		data, err := os.ReadFile(cfg.PatternFile)
		if err != nil {
			log.Printf("○ Advanced patterns disabled (pattern file unreadable: %v); base rules still apply", err)
			enhanced = false
			store = patterns.NewStore(storeOpts...)
		} else {
			var rejected []error
			store, rejected = patterns.ImportYAML(data, storeOpts...)
			if store == nil {
				log.Printf("○ Advanced patterns disabled (pattern file unparsable); base rules still apply")
				enhanced = false
				store = patterns.NewStore(storeOpts...)
			} else if len(rejected) > 0 {
				log.Printf("[PATTERNS] %d pattern(s) rejected at load", len(rejected))
			}
		}
	} else {
		store = patterns.NewStore(storeOpts...)
		patterns.LoadDefaults(store)
	}

	if enhanced {
		log.Printf("✓ Advanced pattern matching enabled (%d detectors)", store.Len())
	} else {
		log.Println("○ Advanced pattern matching disabled (base rules only)")
	}

	calc := escalation.NewCalculator(cfg.Policy())
	registry := analytics.NewRegistry(cfg.Thresholds(), nil)

	return engine.New(patterns.NewMatcher(store), calc, registry, engine.Options{
		EnableAdvancedPatterns: enhanced,
		WindowName:             cfg.EscalationWindow,
	})
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

type checkRequest struct {
	Platform    string `json:"platform"`
	Channel     string `json:"channel"`
	Username    string `json:"username"`
	Content     string `json:"content"`
	BaseFilters []struct {
		FilterID string `json:"filter_id"`
		Severity string `json:"severity"`
	} `json:"base_filters"`
}

func runServer(cfg *config.Config) {
	eng := buildEngine(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional Redis snapshot export
	var exporter *export.RedisExporter
	if cfg.RedisAddr != "" {
		exporter = export.NewRedisExporter(cfg.RedisAddr)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := exporter.Ping(pingCtx); err != nil {
			log.Printf("○ Redis export disabled (ping failed: %v)", err)
			exporter = nil
		} else {
			exporter.StartPeriodic(ctx, eng.Registry(), eng.Calculator().Ledger(), cfg.ExportInterval)
			log.Printf("✓ Redis snapshot export enabled (%s, every %s)", cfg.RedisAddr, cfg.ExportInterval)
		}
		pingCancel()
	} else {
		log.Println("○ Redis snapshot export disabled (no address configured)")
	}

	// Optional Postgres audit trail
	var audit *export.AuditSink
	if cfg.PostgresDSN != "" {
		sinkCtx, sinkCancel := context.WithTimeout(ctx, 5*time.Second)
		sink, err := export.NewAuditSink(sinkCtx, cfg.PostgresDSN)
		sinkCancel()
		if err != nil {
			log.Printf("○ Postgres audit trail disabled (init failed: %v)", err)
		} else {
			audit = sink
			defer audit.Close()
			log.Println("✓ Postgres audit trail enabled")
		}
	} else {
		log.Println("○ Postgres audit trail disabled (no DSN configured)")
	}

	// Periodic near-zero-usage sweep; removal suggestions land in the queue.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eng.Registry().Sweep()
			}
		}
	}()

	app := fiber.New(fiber.Config{
		AppName: "StreamGuard",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Decision pipeline
	app.Post("/v1/check", func(c fiber.Ctx) error {
		var req checkRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Content == "" || req.Username == "" {
			return c.Status(400).JSON(fiber.Map{"error": "username and content are required"})
		}

		msg := moderation.ChatMessage{
			Platform:  req.Platform,
			Channel:   req.Channel,
			Username:  req.Username,
			Content:   req.Content,
			Timestamp: time.Now(),
		}
		var base []moderation.FilterResult
		for _, f := range req.BaseFilters {
			base = append(base, moderation.FilterResult{
				FilterID: f.FilterID,
				Severity: moderation.ParseSeverity(f.Severity),
			})
		}

		decision := eng.CheckMessage(msg, base)
		if audit != nil {
			audit.Record(msg, decision)
		}
		if decision == nil {
			return c.JSON(fiber.Map{"decision": nil})
		}
		return c.JSON(fiber.Map{"decision": decision})
	})

	// Analytics snapshots for dashboards and commands
	app.Get("/v1/analytics", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"global":  eng.Registry().Global().Snapshot(),
			"filters": eng.Registry().Snapshots(),
		})
	})

	app.Get("/v1/analytics/:filter", func(c fiber.Ctx) error {
		snap, ok := eng.Registry().Snapshot(c.Params("filter"))
		if !ok {
			return c.Status(404).JSON(fiber.Map{"error": "unknown filter"})
		}
		return c.JSON(snap)
	})

	app.Get("/v1/alerts", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"alerts": eng.Registry().Alerts()})
	})

	app.Get("/v1/suggestions", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"suggestions": eng.Registry().Suggestions()})
	})

	// Feedback ingestion
	app.Post("/v1/report", func(c fiber.Ctx) error {
		var req struct {
			FilterID  string `json:"filter_id"`
			UserID    string `json:"user_id"`
			Type      string `json:"type"`
			Content   string `json:"content"`
			Moderator bool   `json:"moderator"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.FilterID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "filter_id is required"})
		}
		rt := analytics.ReportType(req.Type)
		switch rt {
		case analytics.ReportFalsePositive, analytics.ReportMissedViolation, analytics.ReportConfirmed:
		default:
			return c.Status(400).JSON(fiber.Map{"error": "type must be: false_positive, missed_violation or confirmed"})
		}
		if req.Moderator {
			eng.Registry().RecordModeratorReview(req.FilterID, req.UserID, rt, req.Content)
		} else {
			eng.Registry().RecordUserReport(req.FilterID, req.UserID, rt, req.Content)
		}
		// A confirmed pattern false positive also corrects matcher credit.
		if rt == analytics.ReportFalsePositive {
			eng.Matcher().Store().ReportFalsePositive(req.FilterID)
		}
		return c.JSON(fiber.Map{"status": "recorded"})
	})

	app.Post("/v1/positive", func(c fiber.Ctx) error {
		var req struct {
			Platform string `json:"platform"`
			Username string `json:"username"`
			Type     string `json:"type"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Username == "" {
			return c.Status(400).JSON(fiber.Map{"error": "username is required"})
		}
		eng.Calculator().RecordPositiveAction(
			req.Platform+":"+req.Username,
			moderation.PositiveActionType(req.Type),
		)
		return c.JSON(fiber.Map{"status": "recorded"})
	})

	// Pattern management
	app.Get("/v1/patterns", func(c fiber.Ctx) error {
		data, err := eng.Matcher().Store().ExportYAML()
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		c.Set("Content-Type", "application/yaml")
		return c.Send(data)
	})

	app.Post("/v1/patterns", func(c fiber.Ctx) error {
		var req struct {
			ID        string  `json:"id"`
			Type      string  `json:"type"`
			Target    string  `json:"target"`
			Threshold float64 `json:"threshold"`
			Severity  string  `json:"severity"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		p := patterns.AdvancedPattern{
			ID:        req.ID,
			Kind:      patterns.Kind(req.Type),
			Target:    req.Target,
			Threshold: req.Threshold,
			Severity:  moderation.ParseSeverity(req.Severity),
		}
		if err := eng.Matcher().Store().Add(p); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "registered", "patterns": eng.Matcher().Store().Len()})
	})

	app.Get("/v1/patterns/ineffective", func(c fiber.Ctx) error {
		threshold := 0.5
		if q := c.Query("threshold"); q != "" {
			if f, err := strconv.ParseFloat(q, 64); err == nil {
				threshold = f
			}
		}
		return c.JSON(fiber.Map{
			"threshold": threshold,
			"patterns":  eng.Matcher().Store().IneffectivePatterns(threshold),
		})
	})

	log.Printf("StreamGuard v%s listening on %s", Version, cfg.ListenAddr)
	log.Printf("Endpoints:")
	log.Printf("  GET  /health                  - Health check")
	log.Printf("  POST /v1/check                - Run a message through the pipeline")
	log.Printf("  GET  /v1/analytics            - Filter + global metrics")
	log.Printf("  GET  /v1/alerts               - Queued alerts")
	log.Printf("  GET  /v1/suggestions          - Optimization suggestions")
	log.Printf("  POST /v1/report               - User/moderator feedback")
	log.Printf("  POST /v1/positive             - Positive-action credit")
	log.Printf("  GET  /metrics                 - Prometheus metrics")

	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

// ============================================================================
// CLI Mode
// ============================================================================

func runCLICheck(text string) {
	cfg := config.NewDefaultConfig()
	eng := buildEngine(cfg)

	decision := eng.CheckMessage(moderation.ChatMessage{
		Platform:  "cli",
		Channel:   "cli",
		Username:  "cli-user",
		Content:   text,
		Timestamp: time.Now(),
	}, nil)

	if decision == nil {
		fmt.Println(`{"decision": null}`)
		return
	}
	out, _ := json.MarshalIndent(decision, "", "  ")
	fmt.Println(string(out))
}
