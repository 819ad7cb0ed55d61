package natsconn

import (
	"reflect"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestEnvInt(t *testing.T) {
	if v := envInt("NATSCONN_TEST_NONEXISTENT", 42); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	t.Setenv("NATSCONN_TEST_INT", "7")
	if v := envInt("NATSCONN_TEST_INT", 42); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
	t.Setenv("NATSCONN_TEST_INT", "-3")
	if v := envInt("NATSCONN_TEST_INT", 42); v != 42 {
		t.Fatalf("expected fallback for negative value, got %d", v)
	}
}

func TestEnvDuration(t *testing.T) {
	if v := envDuration("NATSCONN_TEST_NONEXISTENT", 5*time.Second); v != 5*time.Second {
		t.Fatalf("expected 5s, got %s", v)
	}
	t.Setenv("NATSCONN_TEST_DUR", "3s")
	if v := envDuration("NATSCONN_TEST_DUR", 5*time.Second); v != 3*time.Second {
		t.Fatalf("expected 3s, got %s", v)
	}
}

func TestWithDefaults(t *testing.T) {
	t.Setenv("NATS_URL", "")
	t.Setenv("NATS_MAX_RECONNECTS", "9")
	opts := withDefaults(Options{})
	if opts.URL != nats.DefaultURL {
		t.Fatalf("expected default url, got %s", opts.URL)
	}
	if opts.MaxReconnects != 9 {
		t.Fatalf("expected 9 reconnects from env, got %d", opts.MaxReconnects)
	}
	if opts.ReconnectWait != 2*time.Second {
		t.Fatalf("expected 2s wait, got %s", opts.ReconnectWait)
	}
}

func TestSubjectCoverage(t *testing.T) {
	if !coversSubjects([]string{"progress.segments", "other"}, []string{"progress.segments"}) {
		t.Fatal("expected subjects to be covered")
	}
	if coversSubjects([]string{"other"}, []string{"progress.segments"}) {
		t.Fatal("expected missing subject to be reported")
	}
	got := mergeSubjects([]string{"a", "b"}, []string{"b", "c"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected [a b c], got %v", got)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(Options{
		URL:           "nats://127.0.0.1:19999",
		MaxReconnects: 0,
		ReconnectWait: 10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error connecting to invalid NATS URL")
	}
}
