package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/iliyamo/agency-portal/internal/model"
)

func TestHandleActivityMessageAppendsLine(t *testing.T) {
    dir := t.TempDir()
    ev := NewActivityEvent(model.ActivityLog{
        ID:        "a1",
        ProjectID: "p1",
        Type:      model.ActivityStageChange,
        Content:   "Project moved to Design",
        Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
    }, model.User{ID: "u1", Role: model.RoleAdmin})
    body, _ := json.Marshal(ev)

    for i := 0; i < 2; i++ {
        if err := HandleActivityMessage(dir, body); err != nil {
            t.Fatalf("handle message: %v", err)
        }
    }
    data, err := os.ReadFile(filepath.Join(dir, "activity.log"))
    if err != nil {
        t.Fatalf("read log: %v", err)
    }
    lines := strings.Split(strings.TrimSpace(string(data)), "\n")
    if len(lines) != 2 {
        t.Fatalf("expected 2 lines, got %d", len(lines))
    }
    if !strings.Contains(lines[0], "stage_change | project=p1 | actor=admin:u1") {
        t.Fatalf("unexpected line: %s", lines[0])
    }
}

func TestHandleActivityMessageRejectsGarbage(t *testing.T) {
    if err := HandleActivityMessage(t.TempDir(), []byte("{")); err == nil {
        t.Fatalf("expected malformed JSON to be rejected")
    }
    if err := HandleActivityMessage(t.TempDir(), []byte(`{"content":"x"}`)); err == nil {
        t.Fatalf("expected event without type to be rejected")
    }
}
