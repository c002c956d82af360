package engine

import (
	"strings"
	"testing"

	"github.com/opsgate/opsgate/internal/model"
)

func TestPreviewByActionPrefix(t *testing.T) {
	cases := []struct {
		actionType string
		target     string
		want       string
	}{
		{"delete_file", "/tmp/x", "This will DELETE: /tmp/x"},
		{"write_config", "/etc/app.conf", "This will WRITE to: /etc/app.conf"},
		{"execute_command", "make test", "This will EXECUTE: make test"},
		{"move_file", "/a", "This will MOVE: /a"},
	}
	for _, tc := range cases {
		got := Preview(model.ActionRequest{
			ActionType:  tc.actionType,
			Description: "desc",
			Target:      tc.target,
		})
		if got != tc.want {
			t.Errorf("Preview(%s) = %q, want %q", tc.actionType, got, tc.want)
		}
	}
}

func TestPreviewFallsBackToDescription(t *testing.T) {
	got := Preview(model.ActionRequest{
		ActionType:  "rotate_logs",
		Description: "Rotate application logs",
	})
	if !strings.Contains(got, "Rotate application logs") {
		t.Errorf("Preview = %q", got)
	}
}

func TestPreviewIncludesParametersSorted(t *testing.T) {
	got := Preview(model.ActionRequest{
		ActionType:  "rotate_logs",
		Description: "Rotate",
		Parameters:  map[string]any{"keep": 5, "compress": true},
	})
	ci := strings.Index(got, "compress")
	ki := strings.Index(got, "keep")
	if ci < 0 || ki < 0 || ci > ki {
		t.Errorf("parameters not sorted in preview:\n%s", got)
	}
}
