package cmd

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"nil input", nil, nil, false},
		{"single pair", []string{"model=opus"}, map[string]string{"model": "opus"}, false},
		{
			"multiple pairs",
			[]string{"model=opus", "feature=research"},
			map[string]string{"model": "opus", "feature": "research"},
			false,
		},
		{"value with equals", []string{"query=a=b"}, map[string]string{"query": "a=b"}, false},
		{"missing separator", []string{"model"}, nil, true},
		{"empty key", []string{"=value"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOptions(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOptions(%v) error = %v, wantErr %v", tt.pairs, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseOptions(%v) = %v, want %v", tt.pairs, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("option %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestLevelPriorityOrdering(t *testing.T) {
	if !(levelPriority("debug") < levelPriority("info") &&
		levelPriority("info") < levelPriority("warn") &&
		levelPriority("warn") < levelPriority("error")) {
		t.Error("level priorities must be strictly increasing")
	}
	if levelPriority("bogus") != -1 {
		t.Error("unknown level should map to -1")
	}
}

func TestFormatLogEntry(t *testing.T) {
	entry := &logEntry{
		Time:   time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC),
		Level:  "INFO",
		Msg:    "task admitted",
		TaskID: "t-1",
		Phase:  "submit",
		Extra:  map[string]any{"attempt": 3},
	}

	out := formatLogEntry(entry)
	for _, want := range []string{"13:04:05", "[INFO]", "task admitted", "task_id=t-1", "phase=submit", "attempt"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted entry missing %q: %s", want, out)
		}
	}
}

func TestPassesFilters(t *testing.T) {
	now := time.Now()
	entry := &logEntry{Time: now, Level: "WARN", Msg: "operation failed", Extra: map[string]any{"tier": "refresh"}}

	if !passesFilters(entry, levelPriority("info"), time.Time{}, nil) {
		t.Error("WARN should pass an info-level filter")
	}
	if passesFilters(entry, levelPriority("error"), time.Time{}, nil) {
		t.Error("WARN should not pass an error-level filter")
	}
	if passesFilters(entry, -1, now.Add(time.Minute), nil) {
		t.Error("entry older than since must be filtered")
	}
	if !passesFilters(entry, -1, time.Time{}, regexp.MustCompile("refresh")) {
		t.Error("grep should match extra field values")
	}
	if passesFilters(entry, -1, time.Time{}, regexp.MustCompile("nomatch")) {
		t.Error("grep with no match must filter the entry")
	}
}
