package httpapi

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestLogLevelOverrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/generate?log=debug", nil)
	if requestLogLevel(r) != LevelDebug {
		t.Fatal("query override")
	}
	r = httptest.NewRequest("GET", "/generate", nil)
	r.Header.Set("X-Log-Level", "off")
	if requestLogLevel(r) != LevelOff {
		t.Fatal("header override")
	}
	if parseLevel("ERROR") != LevelError || parseLevel("weird") != LevelInfo || parseLevel("1") != LevelDebug {
		t.Fatal("parseLevel")
	}
}

func TestLineLoggerSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	lw := &lineLogger{log: zerolog.New(&buf)}
	_, _ = lw.Write([]byte(`{"preview":"a"}` + "\n" + `{"done"`))
	_, _ = lw.Write([]byte(":true}\n\n"))
	out := buf.String()
	if strings.Count(out, "generate>") != 2 {
		t.Fatalf("log output=%s", out)
	}
	if !strings.Contains(out, `{\"done\":true}`) {
		t.Fatalf("partial line not joined: %s", out)
	}
}
