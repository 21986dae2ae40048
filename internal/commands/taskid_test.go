package commands

import (
	"errors"
	"testing"
)

func TestParseTaskID(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int64
		wantErr bool
	}{
		{"remote id", []string{"12"}, 12, false},
		{"hash prefix", []string{"#7"}, 7, false},
		{"temporary id", []string{"~3"}, -3, false},
		{"zero", []string{"0"}, 0, true},
		{"temporary zero", []string{"~0"}, 0, true},
		{"letters", []string{"a1"}, 0, true},
		{"bare tilde", []string{"~"}, 0, true},
		{"sign", []string{"+4"}, 0, true},
		{"overflow", []string{"99999999999999999999"}, 0, true},
		{"extra arg", []string{"1", "2"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTaskID(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTaskID(%v) expected error, got %d", tt.args, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTaskID(%v) unexpected error: %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseTaskID(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseTaskID_Required(t *testing.T) {
	_, err := ParseTaskID(nil)
	if !errors.Is(err, ErrTaskIDRequired) {
		t.Errorf("expected ErrTaskIDRequired, got %v", err)
	}
}
