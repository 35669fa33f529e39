package openapi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/addongate/addongate/internal/gate"
)

func TestGenerateSpec(t *testing.T) {
	doc := GenerateSpec("1.2.3", gate.DefaultRoutes())

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi version = %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info.Version != "1.2.3" {
		t.Errorf("info version = %q, want 1.2.3", doc.Info.Version)
	}

	// Every route in the table has a path entry.
	for _, r := range gate.DefaultRoutes() {
		item := doc.Paths.Value(r.Pattern)
		if item == nil {
			t.Errorf("missing path %q", r.Pattern)
			continue
		}
		if op := item.GetOperation(r.Method); op == nil {
			t.Errorf("missing operation %s %s", r.Method, r.Pattern)
		}
	}

	// Utility endpoints are published too.
	if doc.Paths.Value("/health") == nil {
		t.Error("missing /health")
	}
	if doc.Paths.Value("/my-ip") == nil {
		t.Error("missing /my-ip")
	}

	// Path parameters come from the pattern.
	item := doc.Paths.Value("/addons/{slug}")
	if item == nil || item.Get == nil {
		t.Fatal("missing GET /addons/{slug}")
	}
	if len(item.Get.Parameters) != 1 || item.Get.Parameters[0].Value.Name != "slug" {
		t.Errorf("expected one slug path parameter, got %+v", item.Get.Parameters)
	}

	// Security schemes are declared.
	if doc.Components.SecuritySchemes["bearerAuth"] == nil {
		t.Error("missing bearerAuth security scheme")
	}
	if doc.Components.SecuritySchemes["gatewayKey"] == nil {
		t.Error("missing gatewayKey security scheme")
	}
}

func TestMarshalSpec(t *testing.T) {
	data := MarshalSpec("dev", gate.DefaultRoutes())

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("generated document is not valid JSON: %v", err)
	}
	if !strings.Contains(string(data), "/addons/{slug}/restart") {
		t.Error("document missing restart path")
	}
}
