package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"cogrange/src/args"
	"cogrange/src/catalog"
	"cogrange/src/commands"
	"cogrange/src/config"
	"cogrange/src/database"
)

const (
	// Default log levels
	defaultDebugLogLevel   = "debug"
	defaultReleaseLogLevel = "info"
)

// openCatalog opens the tile catalog when a database url is available
func openCatalog(ctx context.Context, dbURL string) (*catalog.Catalog, database.DBAdapter, error) {
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, nil
	}

	db, err := database.CreateDatabaseAdapter(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return catalog.New(db), db, nil
}

// asyncMain is the main async function that handles the application logic
func asyncMain(ctx context.Context, arguments *args.Args) error {
	if arguments.SubCmd.Name == "" {
		// No subcommand provided, help was shown
		return nil
	}

	cfg, err := config.Load(arguments.Config)
	if err != nil {
		return err
	}

	cat, db, err := openCatalog(ctx, arguments.DB)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	env, err := commands.NewEnv(cfg, cat, os.Stdout)
	if err != nil {
		return err
	}
	defer env.Close()

	// Handle subcommands
	switch arguments.SubCmd.Name {
	case "header":
		return commands.RunHeader(ctx, arguments.SubCmd.HeaderArgs, env)
	case "stat":
		return commands.RunStat(ctx, arguments.SubCmd.StatArgs, env)
	case "read":
		return commands.RunRead(ctx, arguments.SubCmd.ReadArgs, env)
	case "register":
		return commands.RunRegister(ctx, arguments.SubCmd.RegisterArgs, env)
	case "drop":
		return commands.RunDrop(ctx, arguments.SubCmd.DropArgs, env)
	case "tiles":
		return commands.RunTiles(ctx, arguments.SubCmd.TilesArgs, env)
	case "batch":
		return commands.RunBatch(ctx, arguments.SubCmd.BatchArgs, env)
	default:
		return fmt.Errorf("unknown subcommand: %s", arguments.SubCmd.Name)
	}
}

// setupLogging configures the logging system
func setupLogging() {
	// Determine default log level based on build mode
	var defaultLogLevel string
	if os.Getenv("DEBUG") == "true" {
		defaultLogLevel = defaultDebugLogLevel
	} else {
		defaultLogLevel = defaultReleaseLogLevel
	}

	// Get log level from environment or use default
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = defaultLogLevel
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Warnf("Invalid log level '%s', using info level", logLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// stdout carries the JSON results
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	setupLogging()

	arguments, err := args.ParseArgs()
	if err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	// Ctrl-C cancels in-flight fetches
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := asyncMain(ctx, arguments); err != nil {
		stop()
		logrus.Fatalf("Application error: %v", err)
	}
}
