package tagging

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Parsed
		wantErr bool
	}{
		{name: "plain", input: `{"tags":["A","B"],"summary":"S."}`, want: Parsed{Tags: []string{"A", "B"}, Summary: "S."}},
		{name: "prose around object", input: "Here you go: {\"tags\":[\"A\"]} thanks", want: Parsed{Tags: []string{"A"}}},
		{name: "null summary", input: `{"tags":[],"summary":null}`, want: Parsed{Tags: []string{}}},
		{name: "array payload", input: `["A","B"]`, wantErr: true},
		{name: "null tags", input: `{"tags":null}`, wantErr: true},
		{name: "tags string", input: `{"tags":"A, B"}`, wantErr: true},
		{name: "summary object", input: `{"tags":["A"],"summary":{"x":1}}`, wantErr: true},
		{name: "empty", input: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResponse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
