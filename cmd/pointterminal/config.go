package main

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/service/processor"
	"github.com/biid/pointterminal/internal/service/terminal"
)

const (
	defaultListenAddr   = "localhost:8080"
	defaultLedgerAddr   = "http://localhost:3000"
	defaultDatabasePath = "terminal.db"
	defaultTerminalID   = "T-001"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address the terminal control API listens on
	ListenAddr string

	// Remote point ledger address to connect to
	LedgerAddr string

	// Terminal-local sqlite database file
	DatabasePath string

	// Identity the terminal authenticates to the ledger with
	TerminalID     string
	TerminalSecret string

	// Operator PIN to provision on first boot. A terminal without a stored
	// PIN boots unlocked.
	OperatorPIN string

	// Hard deadline for a single ledger submission
	SubmitDeadline time.Duration

	// Interval between offline queue drain passes
	DrainInterval time.Duration

	// Idle timeout returning the terminal to the identify screen
	IdleTimeout time.Duration

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		ListenAddr:     defaultListenAddr,
		LedgerAddr:     defaultLedgerAddr,
		DatabasePath:   defaultDatabasePath,
		TerminalID:     defaultTerminalID,
		SubmitDeadline: processor.DefaultDeadline,
		DrainInterval:  30 * time.Second,
		IdleTimeout:    terminal.DefaultIdleTimeout,
		Environment:    defaultEnvironment,
	}
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":     setString(&c.ListenAddr),
		"LEDGER_ADDRESS":  setString(&c.LedgerAddr),
		"DATABASE_PATH":   setString(&c.DatabasePath),
		"TERMINAL_ID":     setString(&c.TerminalID),
		"TERMINAL_SECRET": setString(&c.TerminalSecret),
		"OPERATOR_PIN":    setString(&c.OperatorPIN),
		"LOG_LEVEL":       setString(&c.LogLevel),
		"ENVIRONMENT":     setString(&c.Environment),
		"SUBMIT_DEADLINE": setDuration(&c.SubmitDeadline),
		"DRAIN_INTERVAL":  setDuration(&c.DrainInterval),
		"IDLE_TIMEOUT":    setDuration(&c.IdleTimeout),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("pointterminal", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Control API listen address")
	fs.StringVarP(&c.LedgerAddr, "ledger", "r", c.LedgerAddr, "Remote point ledger address")
	fs.StringVarP(&c.DatabasePath, "database", "d", c.DatabasePath, "Terminal database file")
	fs.StringVarP(&c.TerminalID, "terminal-id", "t", c.TerminalID, "Terminal id")
	fs.StringVarP(&c.TerminalSecret, "terminal-secret", "s", c.TerminalSecret, "Terminal secret")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.SubmitDeadline, "submit-deadline", c.SubmitDeadline, "Ledger submission deadline")
	fs.DurationVar(&c.DrainInterval, "drain-interval", c.DrainInterval, "Offline queue drain interval")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "Idle timeout before returning to identify")

	return fs.Parse(args)
}
