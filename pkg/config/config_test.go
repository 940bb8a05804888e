package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
environment: test
upstream:
  base_url: http://localhost:9000
limits:
  global:
    capacity: 20
    refill_rate: 20
    refill_period: 1s
  routes:
    - name: quote
      capacity: 5
      refill_rate: 5
      refill_period: 10s
    - name: quote-wait
      capacity: 5
      refill_rate: 5
      refill_period: 10s
      mode: wait
      wait_timeout: 15s
metrics:
  enabled: false
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("default port not applied: %d", c.Server.Port)
	}
	if c.Metrics.Enabled {
		t.Fatalf("explicit metrics.enabled=false was overridden")
	}
	if c.Limits.Global.Name != "global" || c.Limits.Global.Mode != ModeReject {
		t.Fatalf("unexpected global bucket %+v", c.Limits.Global)
	}
	q, ok := c.Route("quote")
	if !ok || q.Mode != ModeReject || q.WaitTimeout != 30*time.Second || q.RefillPeriod != 10*time.Second {
		t.Fatalf("unexpected quote bucket %+v", q)
	}
	w, ok := c.Route("quote-wait")
	if !ok || w.Mode != ModeWait || w.WaitTimeout != 15*time.Second {
		t.Fatalf("unexpected quote-wait bucket %+v", w)
	}
	if got := len(c.Buckets()); got != 3 {
		t.Fatalf("Buckets() len=%d, want 3", got)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		wantSub string
	}{
		{name: "zero capacity", replace: [2]string{"capacity: 20", "capacity: 0"}, wantSub: "Capacity"},
		{name: "zero refill rate", replace: [2]string{"refill_rate: 20", "refill_rate: 0"}, wantSub: "RefillRate"},
		{name: "zero refill period", replace: [2]string{"refill_period: 1s", "refill_period: 0s"}, wantSub: "RefillPeriod"},
		{name: "bad mode", replace: [2]string{"mode: wait", "mode: queue"}, wantSub: "Mode"},
		{name: "duplicate route", replace: [2]string{"name: quote-wait", "name: quote"}, wantSub: "duplicate"},
		{name: "missing upstream", replace: [2]string{"base_url: http://localhost:9000", "base_url: \"\""}, wantSub: "BaseURL"},
		{name: "wait outlives write timeout", replace: [2]string{"environment: test", "environment: test\nserver:\n  write_timeout: 15s"}, wantSub: "write_timeout"},
		{name: "unbounded wait with write timeout", replace: [2]string{"wait_timeout: 15s", "wait_timeout: 0s"}, wantSub: "quote-wait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := strings.Replace(sampleYAML, tt.replace[0], tt.replace[1], 1)
			_, err := Parse([]byte(y))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestParseWaitTimeoutZero(t *testing.T) {
	y := strings.Replace(sampleYAML, "environment: test", "environment: test\nserver:\n  write_timeout: 0s", 1)
	y = strings.Replace(y, "wait_timeout: 15s", "wait_timeout: 0s", 1)
	c, err := Parse([]byte(y))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	w, _ := c.Route("quote-wait")
	if w.WaitTimeout != 0 {
		t.Fatalf("explicit wait_timeout 0s became %v", w.WaitTimeout)
	}
	q, _ := c.Route("quote")
	if q.WaitTimeout != 30*time.Second {
		t.Fatalf("omitted wait_timeout=%v, want 30s", q.WaitTimeout)
	}
	if c.Limits.Global.WaitTimeout != 30*time.Second || c.Limits.Global.Mode != ModeReject {
		t.Fatalf("global bucket defaults not applied: %+v", c.Limits.Global)
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RATEGATE_PORT", "9191")
	t.Setenv("RATEGATE_KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if c.Server.Port != 9191 {
		t.Fatalf("port override not applied: %d", c.Server.Port)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("kafka override not applied: %+v", c.Kafka.Brokers)
	}
}
