package storage

import (
	"strings"
	"testing"
	"time"
)

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "localhost:9000", AccessKey: "key", SecretKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if c.ExportBucket() != "tiermem-exports" || c.BackupBucket() != "tiermem-backups" {
		t.Errorf("unexpected buckets %s %s", c.ExportBucket(), c.BackupBucket())
	}
}

func TestExportObjectName(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	name := ExportObjectName("telegram/42", at)
	if !strings.HasPrefix(name, "telegram_42/20250601T093000Z-") {
		t.Errorf("unexpected name %s", name)
	}
	if !strings.HasSuffix(name, ".json") {
		t.Errorf("expected .json suffix, got %s", name)
	}

	if other := ExportObjectName("telegram/42", at); other == name {
		t.Error("names for the same instant should still be unique")
	}
}

func TestBackupObjectName(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 30, 5, 0, time.UTC)

	if got := BackupObjectName(at); got != "2025/06/01/tiermem-093005.db" {
		t.Errorf("unexpected backup name %s", got)
	}
}
