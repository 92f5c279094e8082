package common

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docshare.env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadEnvFileParsing(t *testing.T) {
	cases := []struct {
		name  string
		line  string
		key   string
		want  string
		isSet bool
	}{
		{name: "plain", line: "DS_PLAIN=abc", key: "DS_PLAIN", want: "abc", isSet: true},
		{name: "export prefix", line: "export DS_EXPORTED=1", key: "DS_EXPORTED", want: "1", isSet: true},
		{name: "double quoted", line: `DS_DQ="two words"`, key: "DS_DQ", want: "two words", isSet: true},
		{name: "single quoted", line: "DS_SQ='x=y'", key: "DS_SQ", want: "x=y", isSet: true},
		{name: "mismatched quotes kept", line: `DS_MIX="abc'`, key: "DS_MIX", want: `"abc'`, isSet: true},
		{name: "spaces trimmed", line: "  DS_SPACED  =  v  ", key: "DS_SPACED", want: "v", isSet: true},
		{name: "empty value", line: "DS_EMPTY=", key: "DS_EMPTY", want: "", isSet: true},
		{name: "comment", line: "# DS_COMMENT=1", key: "DS_COMMENT"},
		{name: "no separator", line: "DS_BARE", key: "DS_BARE"},
		{name: "key with space", line: "DS BAD=1", key: "DS BAD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.isSet {
				t.Setenv(tc.key, "placeholder")
				_ = os.Unsetenv(tc.key)
			}
			if err := LoadEnvFile(writeEnvFile(t, tc.line+"\n")); err != nil {
				t.Fatalf("load: %v", err)
			}
			got, ok := os.LookupEnv(tc.key)
			if ok != tc.isSet {
				t.Fatalf("expected set=%v, got set=%v value=%q", tc.isSet, ok, got)
			}
			if ok && got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	t.Setenv("DS_JWT_SECRET", "from-process")
	path := writeEnvFile(t, "DS_JWT_SECRET=from-file\n")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("DS_JWT_SECRET"); got != "from-process" {
		t.Fatalf("expected process value to win, got %q", got)
	}
}

func TestLoadEnvFileMissingOrBlankPath(t *testing.T) {
	for _, path := range []string{"", "   ", filepath.Join(t.TempDir(), "absent.env")} {
		if err := LoadEnvFile(path); err != nil {
			t.Fatalf("path %q: expected no error, got %v", path, err)
		}
	}
}

func TestLoadEnvFileDirectoryFailsOnRead(t *testing.T) {
	if err := LoadEnvFile(t.TempDir()); err == nil {
		t.Fatal("expected error when path is a directory")
	}
}

func TestPrintCIResultWritesOneJSONLine(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	PrintCIResult(false, "bruteforce", []string{"events=0"}, errors.New("timed out"))
	os.Stdout = orig
	_ = w.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got ciResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	if got.OK || got.Check != "bruteforce" || got.Error != "timed out" || len(got.Details) != 1 {
		t.Fatalf("unexpected ci result: %+v", got)
	}
}
