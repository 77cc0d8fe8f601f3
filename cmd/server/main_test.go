package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"

	"soil-platform/internal/config"
	"soil-platform/pkg/logging"
)

func TestReloadLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLoggerWithWriter("soil-api", "test", logging.ErrorLevel, &buf)

	loads := []func() (*config.Config, error){
		func() (*config.Config, error) { return nil, errors.New("bad yaml") },
		func() (*config.Config, error) {
			cfg := config.Default()
			cfg.Logging.Level = "debug"
			return cfg, nil
		},
	}
	calls := 0
	load := func() (*config.Config, error) {
		fn := loads[calls]
		calls++
		return fn()
	}

	hup := make(chan os.Signal, 2)
	hup <- syscall.SIGHUP
	hup <- syscall.SIGHUP
	close(hup)
	reloadLogLevel(logger, hup, load)

	out := buf.String()
	if !strings.Contains(out, "[CONFIG_RELOAD_ERROR]") {
		t.Errorf("failed reload not logged:\n%s", out)
	}
	if !strings.Contains(out, `"level":"DEBUG"`) {
		t.Errorf("applied level not logged:\n%s", out)
	}

	buf.Reset()
	logger.Debug(context.Background(), "[TEST] visible after reload", nil)
	if !strings.Contains(buf.String(), "visible after reload") {
		t.Error("debug entries still filtered after reload to debug")
	}
}
