package config

import "testing"

func TestParseSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"1024", 1024, false},
		{"1KB", 1000, false},
		{"1KiB", 1024, false},
		{"5MB", 5_000_000, false},
		{"10MiB", 10 * 1024 * 1024, false},
		{"1GB", 1_000_000_000, false},
		{"1TiB", 1024 * 1024 * 1024 * 1024, false},
		{"-1", 0, true},
		{"garbage", 0, true},
	}

	for _, c := range cases {
		got, err := ParseSize(c.input)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseSize(%q): expected error, got %d", c.input, got)
			}

			continue
		}

		if err != nil {
			t.Errorf("ParseSize(%q): unexpected error: %v", c.input, err)
			continue
		}

		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.input, got, c.want)
		}
	}
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "", want: 0},
		{input: "0", want: 0},
		{input: "5MB/s", want: 5_000_000},
		{input: "100KB/s", want: 100_000},
		{input: "10MiB/s", want: 10_485_760},
		{input: "2048", want: 2048},
		{input: "5MB", want: 5_000_000},
		{input: "warp", wantErr: true},
		{input: "-1MB/s", wantErr: true},
	}

	for _, c := range cases {
		got, err := ParseRate(c.input)

		if c.wantErr {
			if err == nil {
				t.Errorf("ParseRate(%q): expected error, got %d", c.input, got)
			}

			continue
		}

		if err != nil {
			t.Errorf("ParseRate(%q): unexpected error: %v", c.input, err)
			continue
		}

		if got != c.want {
			t.Errorf("ParseRate(%q) = %d, want %d", c.input, got, c.want)
		}
	}
}
