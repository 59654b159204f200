package runner

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	if !strings.Contains(buf.String(), "Version: "+Version) {
		t.Fatalf("expected version line in banner, got %q", buf.String())
	}
}

func TestSignalContextCancel(t *testing.T) {
	ctx, stop := SignalContext(context.Background())
	stop()
	<-ctx.Done()
}
