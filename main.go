package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"purpleair_status/config"
	"purpleair_status/dashboard"
	"purpleair_status/database"
	"purpleair_status/logger"
	"purpleair_status/metrics"
	"purpleair_status/mockapi"
	"purpleair_status/models"
	"purpleair_status/poller"
	"purpleair_status/publisher"
	"purpleair_status/purpleair"
	"purpleair_status/server"
	"purpleair_status/status"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}

	command := os.Args[1]

	// Initialize logging only for commands that need it
	if needsLogging(command) {
		cfg := loadConfig()
		if err := logger.Init(cfg); err != nil {
			log.Fatalf("Failed to initialize logging: %v", err)
		}
		defer func() {
			err := logger.Close()
			if err != nil {
				log.Fatalf("Failed to close logging: %v", err)
			}
		}()
		logger.LogCommand(os.Args[0], os.Args)
	}

	switch command {
	case "serve":
		serveCommand()
	case "check":
		checkCommand()
	case "migrate":
		migrateCommand()
	case "migrate:create":
		if len(os.Args) < 3 {
			fmt.Println("Error: migration name required")
			fmt.Println("Usage: go run main.go migrate:create <migration_name>")
			return
		}
		createMigrationCommand(os.Args[2])
	case "migrate:status":
		migrationStatusCommand()
	case "db:info":
		dbInfoCommand()
	case "history":
		limit := 10
		if len(os.Args) >= 3 {
			n, err := strconv.Atoi(os.Args[2])
			if err != nil || n <= 0 {
				fmt.Println("Error: history count must be a positive number")
				fmt.Println("Usage: go run main.go history [count]")
				return
			}
			limit = n
		}
		historyCommand(limit)
	case "mock:api":
		mockAPICommand()
	case "help":
		showHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showHelp()
	}
}

// needsLogging determines which commands need logging
func needsLogging(command string) bool {
	loggingCommands := map[string]bool{
		"serve":          true,
		"check":          true,
		"migrate":        true,
		"migrate:create": true,
		"migrate:status": true,
		"history":        true,
		"mock:api":       true,
	}
	return loggingCommands[command]
}

func showHelp() {
	fmt.Println("PurpleAir Sensor Status Checker")
	fmt.Println("")
	fmt.Println("Usage: go run main.go <command> [arguments]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve                 Start the status dashboard")
	fmt.Println("  check                 Refresh once and print the status table")
	fmt.Println("  migrate               Run pending history migrations")
	fmt.Println("  migrate:create <name> Create a new migration file")
	fmt.Println("  migrate:status        Show migration status")
	fmt.Println("  db:info               Show history database information")
	fmt.Println("  history [count]       Show the most recent refresh runs (default 10)")
	fmt.Println("  mock:api              Serve a fake PurpleAir API for local development")
	fmt.Println("  help                  Show this help message")
	fmt.Println("")
	fmt.Println("Configuration:")
	fmt.Println("  Edit config.yaml to configure sensors, thresholds, history, MQTT and logging")
	fmt.Println("  The API key is read from PURPLEAIR_API_KEY (or the variable named by")
	fmt.Println("  purpleair.api_key_env), optionally set in a .env file")
}

func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func connectDatabase() (*config.Config, error) {
	cfg := loadConfig()

	_, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, nil
}

// newPoller builds the refresh pipeline from configuration
func newPoller(cfg *config.Config) *poller.Poller {
	staleAfter, minConfidence := cfg.Status.Thresholds()
	client := purpleair.NewClient(purpleair.ClientConfig{
		BaseURL: cfg.PurpleAir.APIBaseURL,
		APIKey:  cfg.PurpleAir.APIKey,
		Fields:  cfg.PurpleAir.Fields,
		Timeout: cfg.RequestTimeoutDuration(),
	})
	return poller.NewPoller(client, poller.Config{
		SensorIndices: cfg.PurpleAir.SensorIndices,
		Thresholds: status.Thresholds{
			StaleAfterSeconds: staleAfter,
			MinConfidence:     minConfidence,
		},
		Concurrency:    cfg.PurpleAir.Concurrency,
		RequestTimeout: cfg.RequestTimeoutDuration(),
	})
}

func defaultView(cfg *config.Config) dashboard.ViewState {
	v := cfg.Map.DefaultView
	return dashboard.ViewState{Latitude: v.Latitude, Longitude: v.Longitude, Zoom: v.Zoom, Pitch: v.Pitch}
}

func serveCommand() {
	cfg := loadConfig()
	if err := cfg.RequireAPIKey(); err != nil {
		logger.Warnf("%v; every sensor will report an invalid key\n", err)
	}

	m := metrics.New()
	sinks := []dashboard.Sink{m}
	opts := server.Options{
		Port:         cfg.Server.Port,
		MarkerRadius: cfg.Map.MarkerRadius,
		Metrics:      m.Handler(),
	}

	if cfg.History.Enabled {
		db, err := database.Connect(cfg)
		if err != nil {
			logger.Fatalf("Failed to connect to history database: %v\n", err)
		}
		defer database.Close()
		store := database.NewHistoryStore(db)
		sinks = append(sinks, store)
		opts.History = store
		logger.Printf("✓ Recording refresh history in %s database\n", cfg.Database.Driver)
	}

	if cfg.MQTT.Enabled {
		client, err := publisher.NewClient(cfg.MQTT)
		if err != nil {
			logger.Fatalf("Failed to connect to MQTT broker: %v\n", err)
		}
		defer client.Close()
		opts.Broker = client
		sinks = append(sinks, publisher.NewPublisher(client.Native(), cfg.MQTT.TopicPrefix, cfg.MQTT.QoS))
		logger.Printf("✓ Publishing statuses under %s/\n", cfg.MQTT.TopicPrefix)
	}

	state := dashboard.NewState(newPoller(cfg), defaultView(cfg), sinks...)
	srv := server.New(state, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("Watching %d sensors\n", len(cfg.PurpleAir.SensorIndices))
	if err := srv.Serve(ctx); err != nil {
		logger.Fatalf("Server failed: %v\n", err)
	}

	logger.Println("Shutdown complete")
}

func checkCommand() {
	cfg := loadConfig()
	if err := cfg.RequireAPIKey(); err != nil {
		logger.Fatalf("%v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := dashboard.NewState(newPoller(cfg), defaultView(cfg))
	snap, err := state.Refresh(ctx)
	if err != nil {
		logger.Fatalf("Refresh failed: %v\n", err)
	}

	rows := dashboard.Table(snap, time.Now())
	logger.LogDivider()
	logger.Printf("%-34s %-10s %-30s %-9s %-6s\n", "Status", "Sensor ID", "Name", "Mins Ago", "Conf")
	logger.LogDivider()
	for _, row := range rows {
		cells := row.Cells()
		logger.Printf("%-34s %-10s %-30s %-9s %-6s\n", cells[0], cells[1], cells[2], cells[3], cells[4])
	}
	logger.LogDivider()

	located := len(dashboard.Located(snap))
	if located == 0 && len(rows) > 0 {
		logger.Println("No sensors with location data")
	} else {
		logger.Printf("%d of %d sensors have location data\n", located, len(rows))
	}
}

func migrateCommand() {
	logger.Println("Running database migrations...")

	cfg, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v\n", err)
	}

	runner := database.NewMigrationRunner(database.GetDB(), cfg)

	if err := runner.RunMigrations(); err != nil {
		logger.Fatalf("Migration failed: %v\n", err)
	}
}

func createMigrationCommand(name string) {
	logger.Printf("Creating migration: %s\n", name)

	cfg := loadConfig()
	runner := database.NewMigrationRunner(nil, cfg) // Don't need DB connection to create files

	filePath, err := runner.CreateMigration(name)
	if err != nil {
		logger.Fatalf("Failed to create migration: %v\n", err)
	}

	logger.Printf("✓ Migration created: %s\n", filePath)
}

func migrationStatusCommand() {
	logger.Println("Checking migration status...")

	cfg, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v\n", err)
	}

	runner := database.NewMigrationRunner(database.GetDB(), cfg)

	migrations, err := runner.GetMigrationStatus()
	if err != nil {
		logger.Fatalf("Failed to get migration status: %v\n", err)
	}

	if len(migrations) == 0 {
		logger.Println("No migrations found")
		return
	}

	logger.Printf("%-20s %-40s %s\n", "Version", "Name", "Status")
	logger.Println("-------------------------------------------------------------------")

	for _, migration := range migrations {
		state := "Pending"
		if migration.Applied {
			state = "Applied"
		}
		logger.Printf("%-20s %-40s %s\n", migration.Version, migration.Name, state)
	}
}

func dbInfoCommand() {
	fmt.Println("Database Information:")
	fmt.Println(strings.Repeat("=", 50))

	cfg, err := connectDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	info := database.GetDatabaseInfo(cfg)

	fmt.Printf("Database Type:     %v\n", info["driver"])
	fmt.Printf("Connection Status: %v\n", getConnectionStatusText(info["connected"]))
	fmt.Printf("History Enabled:   %v\n", info["history_enabled"])

	switch cfg.Database.Driver {
	case "mysql", "postgres":
		fmt.Printf("Host:              %v\n", info["host"])
		fmt.Printf("Port:              %v\n", info["port"])
		fmt.Printf("Database:          %v\n", info["database"])
	case "sqlite":
		fmt.Printf("File Path:         %v\n", info["path"])
	}

	if info["connected"] == true {
		fmt.Println("\nConnection Pool:")
		fmt.Printf("  Max Connections: %v\n", info["max_open_connections"])
		fmt.Printf("  Open Connections:%v\n", info["open_connections"])
		fmt.Printf("  In Use:          %v\n", info["in_use"])
		fmt.Printf("  Idle:            %v\n", info["idle"])

		db := database.GetDB()
		var runs, statuses, sensors int64
		db.Model(&models.RefreshRun{}).Count(&runs)
		db.Model(&models.SensorStatusRecord{}).Count(&statuses)
		db.Model(&models.SensorStatusRecord{}).Distinct("sensor_index").Count(&sensors)
		fmt.Println("\nHistory Information:")
		fmt.Printf("  Refresh Runs:    %d\n", runs)
		fmt.Printf("  Status Records:  %d\n", statuses)
		fmt.Printf("  Unique Sensors:  %d\n", sensors)

		if runs > 0 {
			var earliest, latest time.Time
			db.Model(&models.RefreshRun{}).Select("MIN(fetched_at)").Scan(&earliest)
			db.Model(&models.RefreshRun{}).Select("MAX(fetched_at)").Scan(&latest)
			fmt.Printf("  Date Range:      %s to %s\n",
				earliest.Format("2006-01-02 15:04:05"),
				latest.Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Println("\nConnection failed - unable to retrieve detailed information")
	}

	fmt.Println(strings.Repeat("=", 50))
}

func getConnectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "✓ Connected"
	}
	return "✗ Disconnected"
}

func historyCommand(limit int) {
	_, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v\n", err)
	}

	store := database.NewHistoryStore(database.GetDB())
	runs, err := store.RecentRuns(context.Background(), limit)
	if err != nil {
		logger.Fatalf("Failed to load history: %v\n", err)
	}

	if len(runs) == 0 {
		logger.Println("No refresh runs recorded")
		return
	}

	logger.Printf("%-36s %-19s %8s %6s %6s %6s %6s\n", "Run", "Fetched", "Ms", "OK", "Low", "Off", "Err")
	logger.LogDivider()
	for _, run := range runs {
		logger.Printf("%-36s %-19s %8d %6d %6d %6d %6d\n",
			run.RunID, run.FetchedAt.Local().Format("2006-01-02 15:04:05"), run.DurationMs,
			run.OnlineCount, run.LowConfCount, run.OfflineCount, run.ErrorCount)
	}
}

func mockAPICommand() {
	cfg := loadConfig()
	port := cfg.Server.Port + 1

	mock := mockapi.New(cfg.PurpleAir.APIKey, time.Now().UnixNano())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mock.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("Mock PurpleAir API on http://localhost:%d%s\n", port, mockapi.BasePath)
	logger.Printf("Set purpleair.api_base_url to http://localhost:%d%s to use it\n", port, mockapi.BasePath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Mock API failed: %v\n", err)
	}
	logger.Printf("Mock API served %d requests\n", mock.Requests())
}

