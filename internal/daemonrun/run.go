package daemonrun

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"caseflow/internal/config"
	"caseflow/internal/daemon"
	"caseflow/internal/ipc"
	"caseflow/internal/logging"
	"caseflow/internal/orchestrator"
	"caseflow/internal/preflight"
	"caseflow/internal/storage"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
	// SocketPath overrides the configured IPC socket location.
	SocketPath string
}

// Run starts the caseflow daemon and blocks until a signal or an IPC stop
// request ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("caseflow-%s.log", stamp))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update caseflow.log link: %v\n", err)
	}

	if opts.Diagnostic {
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath := filepath.Join(debugDir, fmt.Sprintf("caseflow-%s.log", stamp))
		debugLogger, debugErr := logging.New(logging.Options{
			Level:            "debug",
			Format:           "json",
			OutputPaths:      []string{debugLogPath},
			ErrorOutputPaths: []string{debugLogPath},
			Development:      true,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = slog.New(logging.TeeHandler(logger.Handler(), debugLogger.Handler()))
			if err := ensureCurrentLogPointer(debugDir, debugLogPath); err != nil {
				fmt.Fprintf(os.Stderr, "warn: unable to update debug/caseflow.log link: %v\n", err)
			}
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	if strings.TrimSpace(cfg.Storage.BlobSigningKey) == "" {
		key, err := randomKey()
		if err != nil {
			return fmt.Errorf("generate blob signing key: %w", err)
		}
		cfg.Storage.BlobSigningKey = key
		logging.WarnWithContext(logger, "blob signing key not configured; using an ephemeral key", "blob_signing_key_generated",
			logging.String(logging.FieldImpact, "signed blob links stop working after a restart"),
			logging.String(logging.FieldErrorHint, "set storage.blob_signing_key in the config file"),
		)
	}

	db, err := storage.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open database", "storage_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage.driver and the database path or DSN"),
		)
		return err
	}
	defer db.Close()

	if err := runPreflight(signalCtx, cfg, db, logger); err != nil {
		return err
	}

	if n, err := orchestrator.NewRunStore(db).MarkInterrupted(signalCtx, time.Now()); err != nil {
		logger.Warn("failed to mark interrupted runs", logging.Error(err))
	} else if n > 0 {
		logger.Info("marked runs from previous process as interrupted",
			logging.Int64("runs", n),
			logging.String(logging.FieldEventType, "runs_interrupted"))
	}

	components, err := daemon.NewComponents(cfg, db, logger, daemon.ComponentOptions{})
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	d, err := daemon.New(cfg, db, logger, components)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	socketPath := cfg.SocketPath()
	if strings.TrimSpace(opts.SocketPath) != "" {
		socketPath = opts.SocketPath
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.SetShutdown(cancel)
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other instance or remove a stale lock file"),
		)
		return err
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "caseflow.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("caseflow daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func runPreflight(ctx context.Context, cfg *config.Config, db *storage.DB, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg, db, logger)
	for _, r := range results {
		attrs := []logging.Attr{
			logging.String("check", r.Name),
			logging.Bool("required", r.Required),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldEventType, "preflight_check"),
		}
		if r.Passed {
			logger.Info("preflight check passed", logging.Args(attrs...)...)
			continue
		}
		logger.Warn("preflight check failed", logging.Args(attrs...)...)
	}
	if preflight.Failed(results) {
		return fmt.Errorf("required preflight checks failed; run caseflow preflight for details")
	}
	return nil
}

func randomKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "caseflow.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
