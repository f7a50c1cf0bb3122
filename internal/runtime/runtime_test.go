package runtime

import (
	"strings"
	"testing"
)

func TestValidateModelName(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantErr bool
	}{
		{"simple", "all-minilm", false},
		{"org slash name", "sentence-transformers/all-MiniLM-L6-v2", false},
		{"with tag", "nomic-embed-text:latest", false},
		{"dots and underscores", "my_org/model.v2", false},
		{"empty", "", true},
		{"leading slash", "/model", true},
		{"trailing slash", "model/", true},
		{"whitespace", "my model", true},
		{"shell metacharacters", "model;rm -rf", true},
		{"path traversal", "../etc/passwd", true},
		{"too long", strings.Repeat("a", 257), true},
		{"max length", strings.Repeat("a", 256), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModelName(tt.model)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModelName(%q) error = %v, wantErr %v", tt.model, err, tt.wantErr)
			}
		})
	}
}
