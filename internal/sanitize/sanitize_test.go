package sanitize

import (
	"errors"
	"strings"
	"testing"
)

func TestProjectDir(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "absolute", input: "/work/app", want: "/work/app"},
		{name: "trailing slash cleaned", input: "/work/app/", want: "/work/app"},
		{name: "dot segments cleaned", input: "/work/./app", want: "/work/app"},
		{name: "dots inside a name", input: "/work/app..v2", want: "/work/app..v2"},
		{name: "empty", input: "", wantErr: ErrEmptyPath},
		{name: "blank", input: "   ", wantErr: ErrEmptyPath},
		{name: "relative", input: "work/app", wantErr: ErrRelativePath},
		{name: "traversal", input: "/work/../etc", wantErr: ErrPathTraversal},
		{name: "leading traversal", input: "../app", wantErr: ErrPathTraversal},
		{name: "control character", input: "/work/app\x00", wantErr: ErrInvalidPath},
		{name: "too long", input: "/" + strings.Repeat("a", MaxPathLength), wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProjectDir(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ProjectDir(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProjectDir(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ProjectDir(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFeatureID(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantDir   string
		wantIndex int
		wantErr   bool
	}{
		{name: "valid", input: "/work/app:3", wantDir: "/work/app", wantIndex: 3},
		{name: "colon in dir", input: "/work/a:b:0", wantDir: "/work/a:b", wantIndex: 0},
		{name: "no separator", input: "/work/app", wantErr: true},
		{name: "missing index", input: "/work/app:", wantErr: true},
		{name: "missing dir", input: ":2", wantErr: true},
		{name: "negative index", input: "/work/app:-1", wantErr: true},
		{name: "non-numeric index", input: "/work/app:x", wantErr: true},
		{name: "relative dir", input: "app:1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, index, err := FeatureID(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFeatureID) {
					t.Fatalf("FeatureID(%q) error = %v, want ErrInvalidFeatureID", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FeatureID(%q) unexpected error: %v", tt.input, err)
			}
			if dir != tt.wantDir || index != tt.wantIndex {
				t.Errorf("FeatureID(%q) = (%q, %d), want (%q, %d)", tt.input, dir, index, tt.wantDir, tt.wantIndex)
			}
		})
	}
}
