package deploy

import (
	"bytes"
	"strings"
	"testing"
)

const renderedPublisher = `{
    "app_name": "dce_md_publisher",
    "event_loops": [
        {"name": "main_loop", "cpu_id": 2, "busy_spin": true},
        {"name": "admin_loop", "cpu_id": 1, "busy_spin": false}
    ],
    "logging": {"level": "info"}
}`

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	return NewRenderer(testValidator(t))
}

func TestFinalize(t *testing.T) {
	renderer := testRenderer(t)
	app, binding := publisherBinding(CfgEnvs{"log_cpu": 0, "main_loop_cpu": 2, "admin_loop_cpu": 1})

	out, err := renderer.Finalize(testHost(t), "/var/log/dce", app, binding, renderedPublisher)
	if err != nil {
		t.Fatalf("render failed: %s", err)
	}
	text := string(out)
	if !strings.Contains(text, `"log_dir": "/var/log/dce/dce_md_publisher"`) {
		t.Errorf("log_dir not injected:\n%s", text)
	}
	if !strings.HasSuffix(text, "\n") {
		t.Error("rendered config must end with a newline")
	}
}

func TestFinalizeDeterministic(t *testing.T) {
	app, binding := publisherBinding(CfgEnvs{"log_cpu": 0, "main_loop_cpu": 2, "admin_loop_cpu": 1})

	first, err := testRenderer(t).Finalize(testHost(t), "/var/log/dce", app, binding, renderedPublisher)
	if err != nil {
		t.Fatalf("first render failed: %s", err)
	}
	second, err := testRenderer(t).Finalize(testHost(t), "/var/log/dce", app, binding, renderedPublisher)
	if err != nil {
		t.Fatalf("second render failed: %s", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("renders differ:\n%s\n---\n%s", first, second)
	}
}

func TestFinalizeNoLogDir(t *testing.T) {
	renderer := testRenderer(t)
	app, binding := publisherBinding(CfgEnvs{"log_cpu": 0, "main_loop_cpu": 2, "admin_loop_cpu": 1})

	out, err := renderer.Finalize(testHost(t), "", app, binding, renderedPublisher)
	if err != nil {
		t.Fatalf("render failed: %s", err)
	}
	if strings.Contains(string(out), "log_dir") {
		t.Error("log_dir must not be injected when the host has no log_dir")
	}
}

func TestFinalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "leftover marker",
			text: `{"event_loops": [], "port": "{{listen_port}}"}`,
			want: "unresolved template markers",
		},
		{
			name: "stray closing marker",
			text: `{"event_loops": [], "note": "}}"}`,
			want: "unresolved template markers",
		},
		{
			name: "invalid json",
			text: `{"event_loops": [}`,
			want: "not valid JSON",
		},
		{
			name: "not an object",
			text: `[1, 2, 3]`,
			want: "must be a JSON object",
		},
		{
			name: "log_dir without logging section",
			text: `{"event_loops": [{"name": "admin_loop", "cpu_id": 1, "busy_spin": false}]}`,
			want: "'logging' is missing",
		},
		{
			name: "missing admin loop",
			text: `{"event_loops": [{"name": "main_loop", "cpu_id": 2, "busy_spin": true}], "logging": {} }`,
			want: "admin_loop not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := testRenderer(t)
			app, binding := publisherBinding(CfgEnvs{"log_cpu": 0, "main_loop_cpu": 2, "admin_loop_cpu": 1})
			_, err := renderer.Finalize(testHost(t), "/var/log/dce", app, binding, tt.text)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestFinalizeJsonFragment(t *testing.T) {
	renderer := testRenderer(t)
	app, binding := publisherBinding(CfgEnvs{"log_cpu": 0, "main_loop_cpu": 2, "admin_loop_cpu": 1})

	_, err := renderer.Finalize(testHost(t), "", app, binding, `{"event_loops": [], "broken": tru}`)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should quote the fragment around the syntax error: %s", err)
	}
}
