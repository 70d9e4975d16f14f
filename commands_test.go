package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/example/recycle-points/internal/auth"
	"github.com/example/recycle-points/internal/testutil"
	"github.com/example/recycle-points/internal/usecase"
)

const visionURL = "https://vision.test/v1beta/models/test-model:generateContent"

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", testutil.SQLiteDSN(t))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("VISION_TRANSPORT", "http")
	t.Setenv("VISION_ENDPOINT", "https://vision.test")
	t.Setenv("VISION_MODEL", "test-model")
	t.Setenv("VISION_API_KEY", "key")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("MQTT_BROKER", "")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandsScanLookupVerify(t *testing.T) {
	setupEnv(t)

	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodPost, visionURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": "material: plastic, ric: 1, confidence: 85, recyclable: yes"}},
				},
			}},
		}))

	imagePath := filepath.Join(t.TempDir(), "bottle.png")
	if err := os.WriteFile(imagePath, testutil.PNG(8, 8), 0o600); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	if _, err := runCommand(t, "migrate"); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	out, err := runCommand(t, "scan", "--address", "12 Main St", "--image", imagePath)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	var outcome usecase.ScanOutcome
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("failed to decode scan output %q: %v", out, err)
	}
	if !outcome.Success || outcome.PointsAwarded != 10 || outcome.NewTotal != 10 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if httpmock.GetTotalCallCount() != 1 {
		t.Fatalf("expected one vision call, got %d", httpmock.GetTotalCallCount())
	}

	out, err = runCommand(t, "lookup", "--address", "12 MAIN ST")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	var loc usecase.LocationView
	if err := json.Unmarshal([]byte(out), &loc); err != nil {
		t.Fatalf("failed to decode lookup output %q: %v", out, err)
	}
	if !loc.Exists || loc.PointsTotal != 10 {
		t.Fatalf("unexpected location: %+v", loc)
	}

	out, err = runCommand(t, "verify")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected no discrepancies, got %s", out)
	}
}

func TestScanCommandReportsTransportFailure(t *testing.T) {
	setupEnv(t)

	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodPost, visionURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, "overloaded"))

	imagePath := filepath.Join(t.TempDir(), "can.png")
	if err := os.WriteFile(imagePath, testutil.PNG(8, 8), 0o600); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	out, err := runCommand(t, "scan", "--address", "3 Side Rd", "--image", imagePath)
	if err == nil {
		t.Fatal("expected scan to fail")
	}
	if !strings.Contains(out, `"TransportError"`) {
		t.Fatalf("expected TransportError outcome, got %s", out)
	}

	out, err = runCommand(t, "lookup", "--address", "3 Side Rd")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !strings.Contains(out, `"exists": false`) {
		t.Fatalf("failed analysis must not create the location, got %s", out)
	}
}

func TestConfigErrorsFailFast(t *testing.T) {
	setupEnv(t)
	t.Setenv("DATABASE_DRIVER", "mysql")

	if _, err := runCommand(t, "migrate"); err == nil {
		t.Fatal("expected invalid driver to fail")
	}
}

func TestServeRefusesToStartWithoutAuth(t *testing.T) {
	setupEnv(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AUTH_DISABLED", "")

	_, err := runCommand(t, "serve", "--http-addr", "127.0.0.1:0")
	if err == nil {
		t.Fatal("expected serve to fail without JWT_SECRET or AUTH_DISABLED")
	}
	if !errors.Is(err, auth.ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}
}
