package cache

import (
	"testing"
	"time"
)

func TestEntry_Size(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
		want  int
	}{
		{
			name:  "nil entry",
			entry: nil,
			want:  0,
		},
		{
			name:  "empty body",
			entry: &Entry{},
			want:  0,
		},
		{
			name:  "body bytes",
			entry: &Entry{Data: []byte("body{color:gold}")},
			want:  16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Size(); got != tt.want {
				t.Errorf("Size() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_Age(t *testing.T) {
	tests := []struct {
		name     string
		cachedAt time.Time
		wantMin  time.Duration
		wantMax  time.Duration
	}{
		{
			name:     "never stored",
			cachedAt: time.Time{},
			wantMin:  0,
			wantMax:  0,
		},
		{
			name:     "one hour old",
			cachedAt: time.Now().Add(-1 * time.Hour),
			wantMin:  59 * time.Minute,
			wantMax:  61 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{CachedAt: tt.cachedAt}
			got := entry.Age()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Age() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
