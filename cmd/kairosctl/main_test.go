package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/suPer8Hu/kairos/internal/ai"
	"github.com/suPer8Hu/kairos/internal/auth"
	"github.com/suPer8Hu/kairos/internal/chat"
	"github.com/suPer8Hu/kairos/internal/db"
	"github.com/suPer8Hu/kairos/internal/quota"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput = false
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "classify", "spent", "$42.50", "on", "office", "supplies")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.Contains(out, "intent: expense") || !strings.Contains(out, "amount: 42.50") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, "classify", "--json", "hello")
	if err != nil {
		t.Fatalf("classify json: %v", err)
	}
	var got struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil || got.Intent != "chat" {
		t.Fatalf("unexpected json %q err=%v", out, err)
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, err := run(t, "token", "12")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseToken("cli-secret", strings.TrimSpace(out))
	if err != nil || claims.UserID != 12 {
		t.Fatalf("token does not verify: claims=%+v err=%v", claims, err)
	}

	if _, err := run(t, "token", "abc"); err == nil {
		t.Fatalf("expected error for bad user id")
	}
}

func TestQuotaShowAndReset(t *testing.T) {
	dsn := "file:kairosctl_quota?mode=memory&cache=shared"
	t.Setenv("DB_DSN", dsn)
	t.Setenv("QUOTA_BACKEND", "db")

	// keep the shared in-memory database alive for the command's own connection
	gdb, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := gdb.AutoMigrate(&chat.Session{}, &quota.Usage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	if err := chat.NewRepo(gdb).CreateSession(ctx, &chat.Session{SessionID: "01SESSIONCLI0000000000000", UserID: 1, Mode: "liveSearch"}); err != nil {
		t.Fatalf("session: %v", err)
	}
	store := quota.NewDBStore(gdb)
	for i := 0; i < 4; i++ {
		_, _ = store.Incr(ctx, "01SESSIONCLI0000000000000", ai.ModeLiveSearch)
	}
	_, _ = store.Incr(ctx, "01SESSIONCLI0000000000000", ai.ModeSecondaryAI)

	out, err := run(t, "quota", "show", "01SESSIONCLI0000000000000")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "mode=liveSearch") || !strings.Contains(out, "REMAINING") {
		t.Fatalf("unexpected show output %q", out)
	}

	out, err = run(t, "quota", "show", "--json", "01SESSIONCLI0000000000000")
	if err != nil {
		t.Fatalf("show json: %v", err)
	}
	var shown struct {
		Mode   string          `json:"mode"`
		Quotas []quota.Counter `json:"quotas"`
	}
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if shown.Mode != "liveSearch" || len(shown.Quotas) != 2 || shown.Quotas[0].Used != 4 || shown.Quotas[0].Limit != 10 {
		t.Fatalf("unexpected counters %+v", shown)
	}

	if _, err := run(t, "quota", "reset", "01SESSIONCLI0000000000000", "liveSearch"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := store.Used(ctx, "01SESSIONCLI0000000000000", ai.ModeLiveSearch); n != 0 {
		t.Fatalf("live search not reset, used=%d", n)
	}
	if n, _ := store.Used(ctx, "01SESSIONCLI0000000000000", ai.ModeSecondaryAI); n != 1 {
		t.Fatalf("secondary should be untouched, used=%d", n)
	}

	if _, err := run(t, "quota", "reset", "01SESSIONCLI0000000000000", "general"); err == nil {
		t.Fatalf("general is not metered")
	}
}
