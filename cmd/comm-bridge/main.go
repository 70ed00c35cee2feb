package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"thread-comm-bridge/internal/commissioner"
	"thread-comm-bridge/internal/transport"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Connection struct {
		Type  string   `yaml:"type"` // "serial" or "local"
		Port  string   `yaml:"port"`
		Baud  int      `yaml:"baud"`
		Shell string   `yaml:"shell"`
		Args  []string `yaml:"args"`
	} `yaml:"connection"`
	Session struct {
		Prompt         string `yaml:"prompt"`
		Ctl            string `yaml:"ctl"`
		Logout         string `yaml:"logout"`
		CommandTimeout string `yaml:"command_timeout"`
	} `yaml:"session"`
	Commissioner struct {
		ID          string `yaml:"id"`
		CCM         bool   `yaml:"ccm"`
		PSKc        string `yaml:"pskc"` // hex
		DomainName  string `yaml:"domain_name"`
		PrivateKey  string `yaml:"private_key"`
		Certificate string `yaml:"certificate"`
		TrustAnchor string `yaml:"trust_anchor"`
	} `yaml:"commissioner"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	switch c.Connection.Type {
	case "serial":
		if c.Connection.Port == "" {
			return fmt.Errorf("connection.port is required for serial")
		}
	case "local":
	default:
		return fmt.Errorf("connection.type must be serial or local, got %q", c.Connection.Type)
	}
	if c.Session.Prompt == "" {
		return fmt.Errorf("session.prompt is required")
	}
	if c.Commissioner.ID == "" {
		return fmt.Errorf("commissioner.id is required")
	}
	if _, err := hex.DecodeString(c.Commissioner.PSKc); err != nil {
		return fmt.Errorf("commissioner.pskc must be hex: %w", err)
	}
	return nil
}

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.yaml> <operation> [args...]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "operations: start <addr> <port> | stop | active | sessionid |")
		fmt.Fprintln(os.Stderr, "  opdataset-get [names...] | panid-query <mask> <panid> <addr> <wait> |")
		fmt.Fprintln(os.Stderr, "  energy-scan <mask> <count> <period> <duration> <addr> <wait> | token-print")
		os.Exit(2)
	}

	cfg, err := loadConfig(os.Args[1])
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("comm-bridge starting", "version", version)

	tr, err := createTransport(cfg, logger)
	if err != nil {
		logger.Error("create transport", "err", err)
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(cfg.Session.CommandTimeout)
	if err != nil {
		logger.Error("parse session.command_timeout", "err", err)
		_ = tr.Close()
		os.Exit(1)
	}

	session := commissioner.NewSession(tr, commissioner.SessionConfig{
		Prompt:         cfg.Session.Prompt,
		CommandTimeout: timeout,
	}, logger)

	pskc, _ := hex.DecodeString(cfg.Commissioner.PSKc)
	comm, err := commissioner.New(session, commissioner.Config{
		ID:              cfg.Commissioner.ID,
		CCM:             cfg.Commissioner.CCM,
		PSKc:            pskc,
		DomainName:      cfg.Commissioner.DomainName,
		PrivateKeyFile:  cfg.Commissioner.PrivateKey,
		CertificateFile: cfg.Commissioner.Certificate,
		TrustAnchorFile: cfg.Commissioner.TrustAnchor,
	}, commissioner.Options{
		Ctl:    cfg.Session.Ctl,
		Logout: cfg.Session.Logout,
	}, logger)
	if err != nil {
		logger.Error("init commissioner", "err", err)
		_ = session.Close()
		os.Exit(1)
	}
	defer func() {
		if err := comm.Close(); err != nil {
			logger.Warn("close commissioner", "err", err)
		}
	}()

	if err := run(comm, os.Args[2], os.Args[3:]); err != nil {
		logger.Error("operation failed", "op", os.Args[2], "err", err)
		os.Exit(1)
	}
}

func run(comm *commissioner.Commissioner, op string, args []string) error {
	switch op {
	case "start":
		if len(args) != 2 {
			return fmt.Errorf("start needs <addr> <port>")
		}
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad port: %w", err)
		}
		return comm.Start(args[0], port)

	case "stop":
		return comm.Stop()

	case "active":
		active, err := comm.IsActive()
		if err != nil {
			return err
		}
		fmt.Println(active)
		return nil

	case "sessionid":
		id, err := comm.SessionID()
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil

	case "opdataset-get":
		types := make([]commissioner.TLVType, 0, len(args))
		for _, name := range args {
			typ, ok := commissioner.TLVTypeByName(name)
			if !ok {
				return fmt.Errorf("unknown TLV name %q", name)
			}
			types = append(types, typ)
		}
		ds, err := comm.ActiveGet(types)
		if err != nil {
			return err
		}
		doc, err := commissioner.EncodeActiveDataset(ds)
		if err != nil {
			return err
		}
		var pretty map[string]any
		if err := json.Unmarshal([]byte(doc), &pretty); err == nil {
			if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				fmt.Println(string(out))
				return nil
			}
		}
		fmt.Println(doc)
		return nil

	case "panid-query":
		if len(args) != 4 {
			return fmt.Errorf("panid-query needs <mask> <panid> <addr> <wait>")
		}
		mask, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("bad mask: %w", err)
		}
		panID, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			return fmt.Errorf("bad panid: %w", err)
		}
		wait, err := time.ParseDuration(args[3])
		if err != nil {
			return fmt.Errorf("bad wait: %w", err)
		}
		conflict, err := comm.PanIDQuery(uint32(mask), uint16(panID), args[2], wait)
		if err != nil {
			return err
		}
		fmt.Println(conflict)
		return nil

	case "energy-scan":
		if len(args) != 6 {
			return fmt.Errorf("energy-scan needs <mask> <count> <period> <duration> <addr> <wait>")
		}
		mask, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return fmt.Errorf("bad mask: %w", err)
		}
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad count: %w", err)
		}
		period, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("bad period: %w", err)
		}
		duration, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("bad duration: %w", err)
		}
		wait, err := time.ParseDuration(args[5])
		if err != nil {
			return fmt.Errorf("bad wait: %w", err)
		}
		report, err := comm.EnergyScan(uint32(mask), count, period, duration, args[4], wait)
		if err != nil {
			return err
		}
		for _, entry := range report.ChannelMask {
			fmt.Printf("page %d mask %x\n", entry.Page, entry.Masks)
		}
		fmt.Printf("energy %x\n", report.EnergyList)
		return nil

	case "token-print":
		token, err := comm.Token()
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", token)
		return nil
	}
	return fmt.Errorf("unknown operation %q", op)
}

func createTransport(cfg *Config, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Connection.Type {
	case "serial":
		return transport.OpenSerial(cfg.Connection.Port, cfg.Connection.Baud, logger)
	case "local":
		return transport.SpawnPTY(cfg.Connection.Shell, cfg.Connection.Args, logger)
	}
	return nil, fmt.Errorf("unknown connection type %q", cfg.Connection.Type)
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Connection.Type == "" {
		cfg.Connection.Type = "local"
	}
	if cfg.Connection.Baud == 0 {
		cfg.Connection.Baud = 115200
	}
	if cfg.Connection.Shell == "" {
		cfg.Connection.Shell = "/bin/bash"
	}
	if cfg.Session.Ctl == "" {
		cfg.Session.Ctl = commissioner.DefaultCtl
	}
	if cfg.Session.CommandTimeout == "" {
		cfg.Session.CommandTimeout = "10s"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
