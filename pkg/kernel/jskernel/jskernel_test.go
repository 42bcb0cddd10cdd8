package jskernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/wehubfusion/Daedalus/pkg/kernel"
)

// Session teardown must not leave watchdog goroutines behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startSession(t *testing.T) kernel.Session {
	t.Helper()
	provider, err := NewProvider(Config{}, nil)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	session, err := provider.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestRunCapturesRecords(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		wantStdout []string
		wantStderr []string
		wantPlain  string
		wantError  string
	}{
		{
			name:      "expression value becomes display record",
			source:    "2 + 2",
			wantPlain: "4",
		},
		{
			name:   "declaration produces no records",
			source: "var x = 1",
		},
		{
			name:       "console.log goes to stdout",
			source:     "console.log('hello', 42)",
			wantStdout: []string{"hello 42\n"},
		},
		{
			name:       "print alias goes to stdout",
			source:     "print('after')",
			wantStdout: []string{"after\n"},
		},
		{
			name:       "console.error goes to stderr",
			source:     "console.error('boom')",
			wantStderr: []string{"boom\n"},
		},
		{
			name:      "undefined variable raises ReferenceError",
			source:    "print(zz)",
			wantError: "ReferenceError",
		},
		{
			name:      "syntax error is captured, not returned",
			source:    "var = = 1",
			wantError: "SyntaxError",
		},
		{
			name:      "thrown error keeps its message",
			source:    "throw new TypeError('bad thing')",
			wantError: "TypeError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := startSession(t)
			result, err := session.Run(context.Background(), tt.source)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			var stdout, stderr []string
			var errRecord *kernel.Error
			plain := ""
			for _, record := range result.Records {
				switch {
				case record.Stream != nil && record.Stream.Channel == "stdout":
					stdout = append(stdout, record.Stream.Text)
				case record.Stream != nil && record.Stream.Channel == "stderr":
					stderr = append(stderr, record.Stream.Text)
				case record.Error != nil:
					errRecord = record.Error
				case record.Display != nil:
					plain = record.Display["text/plain"]
				}
			}

			if len(stdout) != len(tt.wantStdout) {
				t.Fatalf("stdout records = %v, want %v", stdout, tt.wantStdout)
			}
			for i := range stdout {
				if stdout[i] != tt.wantStdout[i] {
					t.Errorf("stdout[%d] = %q, want %q", i, stdout[i], tt.wantStdout[i])
				}
			}
			if len(stderr) != len(tt.wantStderr) {
				t.Fatalf("stderr records = %v, want %v", stderr, tt.wantStderr)
			}
			if plain != tt.wantPlain {
				t.Errorf("display text/plain = %q, want %q", plain, tt.wantPlain)
			}
			if tt.wantError == "" && errRecord != nil {
				t.Errorf("unexpected error record: %+v", errRecord)
			}
			if tt.wantError != "" {
				if errRecord == nil {
					t.Fatalf("expected %s error record, got none", tt.wantError)
				}
				if errRecord.Name != tt.wantError {
					t.Errorf("error name = %q, want %q", errRecord.Name, tt.wantError)
				}
			}
		})
	}
}

func TestStatePersistsWithinSession(t *testing.T) {
	session := startSession(t)
	ctx := context.Background()

	if _, err := session.Run(ctx, "var x = 40"); err != nil {
		t.Fatalf("fragment 1 failed: %v", err)
	}
	result, err := session.Run(ctx, "x + 2")
	if err != nil {
		t.Fatalf("fragment 2 failed: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].Display == nil {
		t.Fatalf("expected a display record, got %+v", result.Records)
	}
	if got := result.Records[0].Display["text/plain"]; got != "42" {
		t.Errorf("x + 2 = %q, want 42", got)
	}
}

func TestSequenceIncreasesAcrossFragments(t *testing.T) {
	session := startSession(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		result, err := session.Run(ctx, "1")
		if err != nil {
			t.Fatalf("fragment %d failed: %v", want, err)
		}
		if result.Sequence != want {
			t.Errorf("sequence = %d, want %d", result.Sequence, want)
		}
	}
}

func TestDeadlineInterruptsRun(t *testing.T) {
	session := startSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := session.Run(ctx, "for (;;) {}")
	if !errors.Is(err, kernel.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
}

func TestClosedSessionRejectsRun(t *testing.T) {
	session := startSession(t)
	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := session.Run(context.Background(), "1"); err == nil {
		t.Errorf("expected error running on a closed session")
	}
	// Close is idempotent.
	if err := session.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestSandboxRemovesNodeGlobals(t *testing.T) {
	session := startSession(t)
	result, err := session.Run(context.Background(), "typeof require")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := result.Records[0].Display["text/plain"]; got != "undefined" {
		t.Errorf("typeof require = %q, want undefined", got)
	}
}
