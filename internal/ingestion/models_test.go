package ingestion

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		raw     string
		want    Status
		wantErr bool
	}{
		{"lowercase ok", "ok", StatusOK, false},
		{"uppercase ok", "OK", StatusOK, false},
		{"fail", "fail", StatusFail, false},
		{"failed alias", "Failed", StatusFail, false},
		{"error", "error", StatusError, false},
		{"surrounding whitespace", "  ok ", StatusOK, false},
		{"unknown spelling", "passed", "", true},
		{"empty", "", "", true},
		{"garbage", "green", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.raw)

			if tt.wantErr {
				if !errors.Is(err, ErrStatusUnknown) {
					t.Errorf("ParseStatus(%q) error = %v, want ErrStatusUnknown", tt.raw, err)
				}

				return
			}

			if err != nil {
				t.Errorf("ParseStatus(%q) unexpected error: %v", tt.raw, err)
			}

			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizePluginName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"pytest-foo", "pytest-foo"},
		{"Pytest-Foo", "pytest-foo"},
		{"  PYTEST-BAR  ", "pytest-bar"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizePluginName(tt.in); got != tt.want {
			t.Errorf("NormalizePluginName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompositeKeyIdentity(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	a := NewCompositeKey("Pytest-Foo", "1.0", "py311", "7.4")
	b := NewCompositeKey("pytest-foo", "1.0", "py311", "7.4")

	if a != b {
		t.Errorf("keys differing only in name casing should be equal: %v != %v", a, b)
	}

	c := NewCompositeKey("pytest-foo", "1.0", "py311", "7.5")
	if a == c {
		t.Errorf("keys with different runner versions should differ")
	}
}

func TestResultRecordValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := func() ResultRecord {
		return ResultRecord{
			PluginName:    "pytest-foo",
			PluginVersion: "1.0",
			Env:           "py311",
			RunnerVersion: "7.4",
			Status:        StatusOK,
			Output:        "all good",
			Description:   "a plugin",
		}
	}

	t.Run("valid record", func(t *testing.T) {
		r := valid()
		if err := r.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("optional fields may be empty", func(t *testing.T) {
		r := valid()
		r.Output = ""
		r.Description = ""

		if err := r.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*ResultRecord)
		wantErr error
	}{
		{"missing name", func(r *ResultRecord) { r.PluginName = "  " }, ErrPluginNameEmpty},
		{"missing version", func(r *ResultRecord) { r.PluginVersion = "" }, ErrPluginVersionEmpty},
		{"missing env", func(r *ResultRecord) { r.Env = "" }, ErrEnvEmpty},
		{"missing runner version", func(r *ResultRecord) { r.RunnerVersion = "" }, ErrRunnerVersionEmpty},
		{"invalid status", func(r *ResultRecord) { r.Status = "maybe" }, ErrStatusUnknown},
		{"empty status", func(r *ResultRecord) { r.Status = "" }, ErrStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)

			if err := r.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeSubmissions(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("array payload", func(t *testing.T) {
		batch, err := DecodeSubmissions([]byte(`[{"name":"pytest-foo","version":"1.0"},{"name":"pytest-bar","version":"2.0"}]`))
		if err != nil {
			t.Fatalf("DecodeSubmissions() unexpected error: %v", err)
		}

		if len(batch) != 2 {
			t.Fatalf("DecodeSubmissions() len = %d, want 2", len(batch))
		}

		if batch[1].Name != "pytest-bar" {
			t.Errorf("DecodeSubmissions()[1].Name = %q, want %q", batch[1].Name, "pytest-bar")
		}
	})

	t.Run("single object payload", func(t *testing.T) {
		batch, err := DecodeSubmissions([]byte(`{"name":"pytest-foo","version":"1.0","env":"py311","pytest":"7.4","status":"ok"}`))
		if err != nil {
			t.Fatalf("DecodeSubmissions() unexpected error: %v", err)
		}

		if len(batch) != 1 {
			t.Fatalf("DecodeSubmissions() len = %d, want 1", len(batch))
		}

		if batch[0].Pytest != "7.4" {
			t.Errorf("DecodeSubmissions()[0].Pytest = %q, want %q", batch[0].Pytest, "7.4")
		}
	})

	t.Run("unknown fields ignored", func(t *testing.T) {
		batch, err := DecodeSubmissions([]byte(`{"name":"pytest-foo","secret":"hunter2","elapsed":12.5}`))
		if err != nil {
			t.Fatalf("DecodeSubmissions() unexpected error: %v", err)
		}

		if batch[0].Name != "pytest-foo" {
			t.Errorf("DecodeSubmissions()[0].Name = %q, want %q", batch[0].Name, "pytest-foo")
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		if _, err := DecodeSubmissions([]byte("  ")); !errors.Is(err, ErrEmptyPayload) {
			t.Errorf("DecodeSubmissions() error = %v, want ErrEmptyPayload", err)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		if _, err := DecodeSubmissions([]byte(`{"name":`)); err == nil {
			t.Errorf("DecodeSubmissions() expected error for malformed JSON")
		}
	})
}
