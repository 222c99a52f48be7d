package timeparse

import (
	"errors"
	"testing"
	"time"
)

func TestParseInstant(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{
			name: "rfc3339 zulu",
			in:   "2025-07-11T00:00:00Z",
			want: time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "plus zero zero offset",
			in:   "2025-07-11T00:00:00+0000",
			want: time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "offset normalised to utc",
			in:   "2025-07-10T21:00:00-03:00",
			want: time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "zoneless read as utc",
			in:   "2025-07-11T00:00:00",
			want: time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "epoch millis",
			in:   "1720660000000",
			want: time.UnixMilli(1720660000000).UTC(),
		},
		{
			name: "fractional seconds",
			in:   "2025-07-11T00:00:00.500Z",
			want: time.Date(2025, 7, 11, 0, 0, 0, 500000000, time.UTC),
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
		{
			name:    "garbage",
			in:      "tomorrow-ish",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstant(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseInstant(%q) = %v, want error", tt.in, got)
				}
				if !errors.Is(err, ErrInvalidTimestamp) {
					t.Errorf("error %v is not ErrInvalidTimestamp", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInstant(%q) unexpected error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseInstant(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ParseInstant(%q) location = %v, want UTC", tt.in, got.Location())
			}
		})
	}
}

func TestParseMillis(t *testing.T) {
	got, err := ParseMillis("2025-07-11T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 7, 11, 0, 0, 0, 0, time.UTC).UnixMilli()
	if got != want {
		t.Errorf("ParseMillis() = %d, want %d", got, want)
	}
}

func TestParseRangeMillis(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{
			name: "upstream literal",
			in:   "[Thu Jul 10 22:25:00 UTC 2025,Fri Jul 11 00:00:00 UTC 2025]",
			want: 5700000, // 1h35m
		},
		{
			name: "zero span",
			in:   "[Fri Jul 11 00:00:00 UTC 2025,Fri Jul 11 00:00:00 UTC 2025]",
			want: 0,
		},
		{
			name:    "negative span",
			in:      "[Fri Jul 11 00:00:00 UTC 2025,Thu Jul 10 22:25:00 UTC 2025]",
			wantErr: true,
		},
		{
			name:    "missing separator",
			in:      "[Thu Jul 10 22:25:00 UTC 2025]",
			wantErr: true,
		},
		{
			name:    "unparseable departure",
			in:      "[soon,Fri Jul 11 00:00:00 UTC 2025]",
			wantErr: true,
		},
		{
			name:    "unparseable arrival",
			in:      "[Thu Jul 10 22:25:00 UTC 2025,later]",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRangeMillis(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRangeMillis(%q) = %d, want error", tt.in, got)
				}
				if !errors.Is(err, ErrInvalidTimestamp) {
					t.Errorf("error %v is not ErrInvalidTimestamp", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRangeMillis(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRangeMillis(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestInstantRoundTrip(t *testing.T) {
	for _, in := range []string{
		"2025-07-11T00:00:00Z",
		"2025-07-10T22:25:00+0000",
		"2024-02-29T23:59:59Z",
	} {
		first, err := ParseInstant(in)
		if err != nil {
			t.Fatalf("ParseInstant(%q): %v", in, err)
		}
		second, err := ParseInstant(FormatInstant(first))
		if err != nil {
			t.Fatalf("re-parse of %q: %v", FormatInstant(first), err)
		}
		if !first.Equal(second) {
			t.Errorf("round trip of %q: %v != %v", in, first, second)
		}
	}
}
