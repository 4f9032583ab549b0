package bus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEventLogger(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "events.log")

	t.Run("NewEventLogger_Enabled", func(t *testing.T) {
		logger, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer logger.Close()

		if !logger.IsEnabled() {
			t.Error("Expected journal to be enabled")
		}
	})

	t.Run("NewEventLogger_Disabled", func(t *testing.T) {
		logger, err := NewEventLogger(logPath, false)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.IsEnabled() {
			t.Error("Expected journal to be disabled")
		}
	})

	t.Run("Log_Enabled", func(t *testing.T) {
		logger, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer logger.Close()

		event := NewEvent("decode.job.request", "test", map[string]string{"key": "value"})
		if err := logger.Log(TopicJobRequest, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}

		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("journal file missing: %v", err)
		}
	})

	t.Run("Log_Disabled_NoOp", func(t *testing.T) {
		path := filepath.Join(tempDir, "disabled.log")
		logger, err := NewEventLogger(path, false)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer logger.Close()

		if err := logger.Log("any.topic", Event{ID: "x"}); err != nil {
			t.Errorf("disabled Log should be a no-op, got %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("disabled journal should not create a file")
		}
	})

	t.Run("GetEvents", func(t *testing.T) {
		path := filepath.Join(tempDir, "get_events.log")
		logger, err := NewEventLogger(path, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer logger.Close()

		now := time.Now()
		for i := 0; i < 5; i++ {
			event := Event{
				ID:        "evt-" + string(rune('1'+i)),
				Type:      "decode.job.progress",
				Source:    "test",
				Timestamp: now.UnixMilli(),
			}
			if err := logger.Log(TopicJobProgress, event); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		events, err := logger.GetEvents(now.Add(-1*time.Minute), 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != 5 {
			t.Errorf("Expected 5 events, got %d", len(events))
		}

		events, err = logger.GetEvents(now.Add(-1*time.Minute), 3)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != 3 {
			t.Errorf("Expected 3 events (limit), got %d", len(events))
		}
	})

	t.Run("Replay", func(t *testing.T) {
		path := filepath.Join(tempDir, "replay.log")
		logger, err := NewEventLogger(path, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer logger.Close()

		now := time.Now()
		for i := 0; i < 3; i++ {
			event := NewEvent("decode.job.request", "test", nil)
			if err := logger.Log(TopicJobRequest, event); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		replayBus := NewMemoryBus()
		defer replayBus.Close()

		eventCount := 0
		ctx := context.Background()
		err = replayBus.Subscribe(ctx, TopicJobRequest, func(ctx context.Context, event Event) error {
			eventCount++
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		if err := logger.Replay(ctx, replayBus, now.Add(-1*time.Minute)); err != nil {
			t.Fatalf("Replay failed: %v", err)
		}

		// Give handlers time to process
		time.Sleep(100 * time.Millisecond)

		if eventCount != 3 {
			t.Errorf("Expected 3 replayed events, got %d", eventCount)
		}
	})
}

func TestLoggedBus(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "logged_bus.log")

	innerBus := NewMemoryBus()
	defer innerBus.Close()

	logger, err := NewEventLogger(logPath, true)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	loggedBus := NewLoggedBus(innerBus, logger, nil)
	defer loggedBus.Close()

	event := NewEvent("decode.job.request", "test", nil)

	ctx := context.Background()
	if err := loggedBus.Publish(ctx, TopicJobRequest, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Verify event was journaled
	events, err := logger.GetEvents(time.Now().Add(-1*time.Minute), 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("Expected 1 journaled event, got %d", len(events))
	}
	if events[0].Event.ID != event.ID {
		t.Errorf("Expected event ID %q, got %q", event.ID, events[0].Event.ID)
	}
}
