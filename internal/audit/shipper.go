// Package audit forwards audit log entries to destinations outside the
// database. The audit_logs table stays the system of record; shippers send a
// copy of each entry to a JSON-lines file or an HTTP collector so a SIEM can
// consume them without querying Postgres.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/workboard/workboard/internal/config"
	"github.com/workboard/workboard/internal/db/models"
	"github.com/workboard/workboard/internal/safego"
)

// LogEntry is the wire form of an audit record
type LogEntry struct {
	ID           string                 `json:"id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       string                 `json:"action"`
	IdentityID   string                 `json:"identity_id,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EntryFromModel converts a stored audit row into its shipped form
func EntryFromModel(log *models.AuditLog) *LogEntry {
	return &LogEntry{
		ID:           log.ID,
		Timestamp:    log.CreatedAt,
		Action:       log.Action,
		IdentityID:   deref(log.IdentityID),
		ResourceType: deref(log.ResourceType),
		ResourceID:   deref(log.ResourceID),
		IPAddress:    deref(log.IPAddress),
		Metadata:     log.Metadata,
	}
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close flushes pending entries and releases resources
	Close() error
}

// MultiShipper ships to every configured destination
type MultiShipper struct {
	shippers []Shipper
}

// NewMultiShipper builds the shippers enabled in cfg. With none enabled the
// result is an empty shipper whose Ship is a no-op.
func NewMultiShipper(cfg *config.AuditConfig, extra ...Shipper) (*MultiShipper, error) {
	ms := &MultiShipper{shippers: make([]Shipper, 0, 2+len(extra))}
	if cfg != nil {
		if cfg.File.Enabled {
			fs, err := NewFileShipper(&cfg.File)
			if err != nil {
				return nil, fmt.Errorf("failed to create file shipper: %w", err)
			}
			ms.shippers = append(ms.shippers, fs)
		}
		if cfg.Webhook.Enabled {
			ws, err := NewWebhookShipper(&cfg.Webhook)
			if err != nil {
				_ = ms.Close()
				return nil, fmt.Errorf("failed to create webhook shipper: %w", err)
			}
			ms.shippers = append(ms.shippers, ws)
		}
	}
	ms.shippers = append(ms.shippers, extra...)
	return ms, nil
}

// Len reports how many destinations are configured
func (ms *MultiShipper) Len() int { return len(ms.shippers) }

// Ship sends an entry to all configured shippers. A failing destination does
// not stop delivery to the others; the errors are joined.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	var errs []error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	var errs []error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Webhook
// ---------------------------------------------------------------------------

// WebhookShipper posts audit entries to an HTTP collector. With BatchSize > 0
// entries are queued and posted as a JSON array when the batch fills, on every
// flush interval, and on Close.
type WebhookShipper struct {
	url       string
	headers   map[string]string
	batchSize int
	interval  time.Duration
	timeout   time.Duration
	client    *http.Client

	queue     chan *LogEntry
	closeCh   chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewWebhookShipper creates a new webhook shipper
func NewWebhookShipper(cfg *config.AuditWebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ws := &WebhookShipper{
		url:       cfg.URL,
		headers:   cfg.Headers,
		batchSize: cfg.BatchSize,
		interval:  interval,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		queue:     make(chan *LogEntry, 1000),
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	if ws.batchSize > 0 {
		safego.Go(safego.AuditWebhook, ws.processBatches)
	} else {
		close(ws.done)
	}
	return ws, nil
}

// processBatches owns the pending batch; nothing else touches it
func (ws *WebhookShipper) processBatches() {
	defer close(ws.done)

	ticker := time.NewTicker(ws.interval)
	defer ticker.Stop()

	batch := make([]*LogEntry, 0, ws.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := ws.post(batch); err != nil {
			slog.Warn("audit webhook: failed to send batch", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-ws.queue:
			batch = append(batch, entry)
			if len(batch) >= ws.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ws.closeCh:
			for {
				select {
				case entry := <-ws.queue:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (ws *WebhookShipper) post(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), ws.timeout)
	defer cancel()
	return ws.sendRequest(ctx, data)
}

// Ship sends an entry to the webhook, or queues it when batching is enabled.
// A full queue falls back to a direct send.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.batchSize > 0 && !ws.closed.Load() {
		select {
		case ws.queue <- entry:
			return nil
		default:
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return ws.sendRequest(ctx, data)
}

func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes any queued entries and waits for the batch loop to exit.
// Entries shipped after Close are sent directly.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		ws.closed.Store(true)
		close(ws.closeCh)
	})
	<-ws.done
	return nil
}

// ---------------------------------------------------------------------------
// File
// ---------------------------------------------------------------------------

// FileShipper appends audit entries to a JSON-lines file with size-based rotation
type FileShipper struct {
	path       string
	maxBytes   int64
	maxBackups int
	file       *os.File
	mu         sync.Mutex
}

// NewFileShipper creates a new file shipper
func NewFileShipper(cfg *config.AuditFileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	fs := &FileShipper{
		path:       cfg.Path,
		maxBytes:   int64(cfg.MaxSizeMB) * 1024 * 1024,
		maxBackups: cfg.MaxBackups,
		file:       file,
	}
	return fs, nil
}

// Ship writes an entry to the file
func (fs *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.maxBytes > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > fs.maxBytes {
			if err := fs.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1 and reopens
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	if fs.maxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.path, fs.maxBackups))
	}
	for i := fs.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", fs.path, i), fmt.Sprintf("%s.%d", fs.path, i+1))
	}
	_ = os.Rename(fs.path, fs.path+".1")

	file, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
