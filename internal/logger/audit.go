package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditAction represents the type of auditable administration action.
type AuditAction string

const (
	AuditActionInitializeCluster AuditAction = "initialize_cluster"
	AuditActionCreateSet         AuditAction = "create_set"
	AuditActionUpdateSet         AuditAction = "update_set"
	AuditActionDropSet           AuditAction = "drop_set"
	AuditActionUpgradeCluster    AuditAction = "upgrade_cluster"
)

// AuditOutcome represents the result of an auditable action.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
	AuditOutcomePartial AuditOutcome = "partial"
)

// AuditEvent represents an auditable administration event.
type AuditEvent struct {
	Action    AuditAction    `json:"action"`
	Actor     string         `json:"actor"`
	Cluster   string         `json:"cluster"`
	Set       string         `json:"set,omitempty"`
	Outcome   AuditOutcome   `json:"outcome"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditLogger handles audit logging to a dedicated rotated file.
type AuditLogger struct {
	logger *slog.Logger
	closer *lumberjack.Logger
}

// NewAuditLogger creates a new audit logger writing to auditPath.
func NewAuditLogger(auditPath string, maxAgeDays int) (*AuditLogger, error) {
	if auditPath == "" {
		return nil, fmt.Errorf("audit path is required")
	}

	if err := os.MkdirAll(filepath.Dir(auditPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	if maxAgeDays <= 0 {
		maxAgeDays = 365 // 1 year retention by default
	}

	lj := &lumberjack.Logger{
		Filename:   auditPath,
		MaxSize:    100, // MB
		MaxBackups: 0,   // keep all backups within MaxAge
		MaxAge:     maxAgeDays,
		Compress:   true,
	}

	handler := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: slog.LevelInfo})

	return &AuditLogger{
		logger: slog.New(handler),
		closer: lj,
	}, nil
}

// Log records an administration audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if a == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("action", string(event.Action)),
		slog.String("actor", event.Actor),
		slog.String("cluster", event.Cluster),
		slog.String("outcome", string(event.Outcome)),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.Set != "" {
		attrs = append(attrs, slog.String("set", event.Set))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

// Close closes the audit logger's underlying file.
func (a *AuditLogger) Close() error {
	if a != nil && a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// NopAuditLogger returns an audit logger that does nothing.
func NopAuditLogger() *AuditLogger {
	return nil
}
