package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	bolt "go.etcd.io/bbolt"

	"github.com/mina-assistant/billing/internal/flow"
	"github.com/mina-assistant/billing/internal/intent"
	"github.com/mina-assistant/billing/internal/invoice"
	"github.com/mina-assistant/billing/internal/notify"
	"github.com/mina-assistant/billing/internal/payment"
	"github.com/mina-assistant/billing/internal/pdf"
	"github.com/mina-assistant/billing/internal/reminder"
	"github.com/mina-assistant/billing/internal/scanning"
	"github.com/mina-assistant/billing/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("billing-assistant")
	var (
		port     = fs.IntLong("port", 8080, "HTTP server port")
		dbPath   = fs.StringLong("db", "billing.db", "Database file path")
		database = fs.StringLong("database", "bolt", "Invoice database: 'bolt' or 'postgres'")
		pgDSN    = fs.StringLong("postgres-dsn", "", "Postgres DSN for the invoice database")

		storageType = fs.StringLong("storage", "local", "Document storage: 'local' or 's3'")
		storagePath = fs.StringLong("storage-path", "./documents", "Local storage directory path")
		s3Region    = fs.StringLong("s3-region", "ap-south-1", "S3 region")
		s3Bucket    = fs.StringLong("s3-bucket", "", "S3 bucket for documents")
		s3Prefix    = fs.StringLong("s3-prefix", "billing", "S3 key prefix")
		s3Key       = fs.StringLong("s3-key", "", "S3 access key (optional, default credential chain otherwise)")
		s3Secret    = fs.StringLong("s3-secret", "", "S3 secret key")

		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")

		authUser = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = fs.StringLong("auth-pass", "", "Basic auth password (optional)")

		businessName  = fs.StringLong("business-name", "", "Business name printed on invoices")
		businessPhone = fs.StringLong("business-phone", "", "Business phone printed on invoices")
		upiNote       = fs.StringLong("upi-note", "", "Payment note printed on invoices")

		smtpHost = fs.StringLong("smtp-host", "", "SMTP host for invoice email (optional)")
		smtpPort = fs.IntLong("smtp-port", 587, "SMTP port")
		smtpUser = fs.StringLong("smtp-user", "", "SMTP username")
		smtpPass = fs.StringLong("smtp-pass", "", "SMTP password")
		smtpFrom = fs.StringLong("smtp-from", "Billing Assistant", "SMTP sender display name")

		waURL   = fs.StringLong("whatsapp-url", "", "WhatsApp API base URL (optional)")
		waToken = fs.StringLong("whatsapp-token", "", "WhatsApp API access token")

		morningBrief = fs.StringLong("morning-brief", "03:30", "Morning brief time, HH:MM UTC")
		eveningBrief = fs.StringLong("evening-brief", "12:30", "Evening summary time, HH:MM UTC")
		weeklyDigest = fs.StringLong("weekly-digest", "14:30", "Sunday digest time, HH:MM UTC")

		razorpayKey    = fs.StringLong("razorpay-key", "", "Razorpay key ID (or set RAZORPAY_KEY_ID env var)")
		razorpaySecret = fs.StringLong("razorpay-secret", "", "Razorpay key secret")
		webhookSecret  = fs.StringLong("webhook-secret", "", "Payment webhook signing secret")

		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLING"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Session, payment, reminder, and dedupe state always live in bolt
	slog.Info("Opening database...", "path", *dbPath)
	boltDB, err := bolt.Open(*dbPath, 0600, nil)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer boltDB.Close()

	// Invoice database
	var invoiceDB invoice.DB
	switch *database {
	case "bolt":
		invoiceDB, err = invoice.NewBoltDB(boltDB)
	case "postgres":
		if *pgDSN == "" {
			slog.Error("Postgres DSN is required. Set --postgres-dsn flag or BILLING_POSTGRES_DSN environment variable")
			os.Exit(1)
		}
		invoiceDB, err = invoice.NewPostgresDB(*pgDSN)
	default:
		slog.Error("Invalid database type", "type", *database, "valid", "bolt or postgres")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize invoice database", "error", err)
		os.Exit(1)
	}
	defer invoiceDB.Close()

	// Document storage
	var store invoice.Storage
	switch *storageType {
	case "local":
		store, err = invoice.NewLocalStorage(*storagePath)
	case "s3":
		if *s3Bucket == "" {
			slog.Error("S3 bucket is required. Set --s3-bucket flag or BILLING_S3_BUCKET environment variable")
			os.Exit(1)
		}
		store, err = invoice.NewS3Storage(context.Background(), invoice.S3Config{
			Region: *s3Region,
			Bucket: *s3Bucket,
			Prefix: *s3Prefix,
			Key:    *s3Key,
			Secret: *s3Secret,
		})
	default:
		slog.Error("Invalid storage type", "type", *storageType, "valid", "local or s3")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Scanner
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	// Invoice service with PDF rendering, email, and due reminders
	invoiceService := invoice.NewService(invoiceDB, scanner, store).
		WithRenderer(pdf.NewRenderer(pdf.BusinessInfo{
			Name:    *businessName,
			Phone:   *businessPhone,
			UPINote: *upiNote,
		}))

	if *smtpHost != "" {
		mailer, err := notify.NewEmail(*smtpHost, *smtpPort, *smtpUser, *smtpPass, *smtpFrom)
		if err != nil {
			slog.Error("Failed to initialize email", "error", err)
			os.Exit(1)
		}
		invoiceService.WithMailer(mailer)
	}

	reminderStore, err := reminder.NewBoltStore(boltDB)
	if err != nil {
		slog.Error("Failed to initialize reminder store", "error", err)
		os.Exit(1)
	}
	reminderQueue := reminder.NewQueue(reminderStore)
	invoiceService.WithReminders(reminderQueue)

	// Payments
	razorKey := *razorpayKey
	if razorKey == "" {
		razorKey = os.Getenv("RAZORPAY_KEY_ID")
	}
	razorSecret := *razorpaySecret
	if razorSecret == "" {
		razorSecret = os.Getenv("RAZORPAY_KEY_SECRET")
	}
	if razorKey == "" || razorSecret == "" {
		slog.Error("Razorpay credentials are required. Set --razorpay-key/--razorpay-secret or RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET environment variables")
		os.Exit(1)
	}
	linkClient, err := payment.NewClient(razorKey, razorSecret)
	if err != nil {
		slog.Error("Failed to initialize payment client", "error", err)
		os.Exit(1)
	}
	paymentStore, err := payment.NewBoltStore(boltDB)
	if err != nil {
		slog.Error("Failed to initialize payment store", "error", err)
		os.Exit(1)
	}
	paymentService := payment.NewService(paymentStore, linkClient)
	if *webhookSecret == "" {
		slog.Warn("No webhook secret configured, payment webhooks will be rejected")
	}

	// Conversation flow and intent routing
	flowStore, err := flow.NewBoltStore(boltDB)
	if err != nil {
		slog.Error("Failed to initialize flow store", "error", err)
		os.Exit(1)
	}
	dedupeStore, err := intent.NewBoltDedupeStore(boltDB)
	if err != nil {
		slog.Error("Failed to initialize dedupe store", "error", err)
		os.Exit(1)
	}
	router := intent.NewRouter(invoiceService, flow.New(flowStore), slog.Default()).
		WithReminders(reminderQueue).
		WithDedupe(dedupeStore)

	// Outbound notification channel for reminders and briefs
	var notifier notify.Notifier = notify.LogNotifier{}
	if *waURL != "" && *waToken != "" {
		notifier, err = notify.NewWhatsApp(*waURL, *waToken)
		if err != nil {
			slog.Error("Failed to initialize WhatsApp channel", "error", err)
			os.Exit(1)
		}
		slog.Info("WhatsApp channel enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := reminder.NewScheduler(reminderStore, notifier, invoiceService, slog.Default()).
		WithBriefTimes(*morningBrief, *eveningBrief, *weeklyDigest)
	if err != nil {
		slog.Error("Invalid brief time", "error", err)
		os.Exit(1)
	}
	go scheduler.Run(ctx)

	// HTTP server
	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(invoiceService, paymentService, router, basicAuth, *webhookSecret)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	<-ctx.Done()
	slog.Info("Shutting down...")
}
