// Command sqliter-browse pages through the result of a query, holding one
// result window in memory at a time.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/semihalev/go-sqliter"
)

type configuration struct {
	dbPath     string
	query      string
	windowSize int
	engine     string
	logPath    string
}

func main() {
	config := parseArguments()

	logger, closeLog, err := openLog(config.logPath)
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}
	defer closeLog()

	opts := []sqliter.Option{sqliter.WithLogger(logger), sqliter.WithReadOnly(), sqliter.WithVerboseDataCalls()}
	switch config.engine {
	case "modernc":
	case "native":
		if !sqliter.NativeAvailable() {
			log.Fatalf("Native engine unavailable: %v", sqliter.GetNativeLibraryError())
		}
		opts = append(opts, sqliter.WithEngine(sqliter.NativeEngine{}))
	default:
		log.Fatalf("Unknown engine %q", config.engine)
	}

	conn, err := sqliter.Open(config.dbPath, opts...)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer conn.Close()

	p, err := newPager(conn, config.query, config.windowSize)
	if err != nil {
		log.Fatalf("Failed to prepare query: %v", err)
	}
	defer p.close()

	m, err := newModel(p, config.query)
	if err != nil {
		log.Fatalf("Failed to run query: %v", err)
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// parseArguments processes command-line flags
func parseArguments() configuration {
	var config configuration

	flag.StringVar(&config.dbPath, "db", "", "Database file")
	flag.StringVar(&config.query, "query", "", "Query to browse")
	flag.IntVar(&config.windowSize, "window", sqliter.DefaultWindowSize, "Result window size in bytes")
	flag.StringVar(&config.engine, "engine", "modernc", "SQLite engine: modernc or native")
	flag.StringVar(&config.logPath, "log", "", "Write debug logs to this file")
	flag.Parse()

	if config.dbPath == "" || config.query == "" {
		fmt.Fprintln(os.Stderr, "Usage: sqliter-browse -db <file> -query <sql> [-window bytes] [-engine modernc|native] [-log file]")
		os.Exit(2)
	}
	return config
}

func openLog(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { f.Close() }, nil
}
