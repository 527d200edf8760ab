package registry

import "testing"

func TestRecord_HasActive(t *testing.T) {
	tests := []struct {
		name string
		rec  *Record
		want bool
	}{
		{"nil record", nil, false},
		{"empty record", &Record{}, false},
		{"active version", &Record{ActiveVersion: "shop-v3"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.HasActive(); got != tt.want {
				t.Errorf("HasActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecord_IsActive(t *testing.T) {
	rec := &Record{ActiveVersion: "shop-v3"}

	if !rec.IsActive("shop-v3") {
		t.Error("IsActive(shop-v3) should be true")
	}
	if rec.IsActive("shop-v2") {
		t.Error("IsActive(shop-v2) should be false")
	}
	if (&Record{}).IsActive("") {
		t.Error("empty record must not report the empty version as active")
	}
}
