package minerlog

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/btcsuite/btclog"
)

func TestSubsystemUnknownTagFallsBackToMain(t *testing.T) {
	t.Parallel()
	if Subsystem("NOPE") != Subsystem("MAIN") {
		t.Errorf("Subsystem(unknown) should return the MAIN logger")
	}
}

func TestSubsystemKnownTags(t *testing.T) {
	t.Parallel()
	for _, tag := range []string{"STRT", "MINE", "HASH", "API ", "MAIN"} {
		if l := Subsystem(tag); l == nil {
			t.Errorf("Subsystem(%q) returned nil", tag)
		}
	}
}

func TestSetOutputRedirectsLogging(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	l := Subsystem("MINE")
	l.SetLevel(btclog.LevelInfo)
	l.Info("hello from test")

	if !strings.Contains(buf.String(), "hello from test") {
		t.Errorf("SetOutput did not redirect subsystem logging: %q", buf.String())
	}
}
