package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeDecodeEdge(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		dst     string
		service string
	}{
		{"service link", "cell-1", "cell-2", "svcA->svcB"},
		{"qualified", "cell-1.svcA", "cell-2.svcB", ""},
		{"padded link", "n1", "n2", "a -> b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, err := EncodeEdge(tt.src, tt.dst, tt.service)
			if err != nil {
				t.Fatalf("EncodeEdge failed: %v", err)
			}
			e, err := DecodeEdge(label)
			if err != nil {
				t.Fatalf("DecodeEdge failed: %v", err)
			}
			if e.Source != tt.src || e.Target != tt.dst || e.Service != tt.service {
				t.Errorf("Round trip mismatch: got %+v", e)
			}
			if e.Label() != label {
				t.Errorf("Expected label %q, got %q", label, e.Label())
			}
		})
	}
}

func TestEncodeEdge_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		dst     string
		service string
	}{
		{"empty source", "", "b", "x->y"},
		{"empty target", "a", "", "x->y"},
		{"separator in id", "a###b", "c", "x->y"},
		{"separator in service", "a", "b", "x###y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeEdge(tt.src, tt.dst, tt.service); !errors.Is(err, ErrMalformedEdge) {
				t.Errorf("Expected ErrMalformedEdge, got %v", err)
			}
		})
	}
}

func TestDecodeEdge_Malformed(t *testing.T) {
	for _, label := range []string{"", "a###b", "a###b###c###d", "###b###c", "a######c"} {
		if _, err := DecodeEdge(label); !errors.Is(err, ErrMalformedEdge) {
			t.Errorf("DecodeEdge(%q): expected ErrMalformedEdge, got %v", label, err)
		}
	}
}

func TestParseServiceLink(t *testing.T) {
	link, err := ParseServiceLink(" svcA -> svcB ")
	if err != nil {
		t.Fatalf("ParseServiceLink failed: %v", err)
	}
	if link.Source != "svcA" || link.Target != "svcB" {
		t.Errorf("Unexpected link %+v", link)
	}
	if link.String() != "svcA->svcB" {
		t.Errorf("Unexpected string %q", link.String())
	}

	for _, bad := range []string{"", "svcA", "->svcB", "svcA->", "a->b->c"} {
		if _, err := ParseServiceLink(bad); err == nil {
			t.Errorf("ParseServiceLink(%q): expected error", bad)
		}
	}
}

func TestEdgeJSON(t *testing.T) {
	e := Edge{Source: "n1", Target: "n2", Service: "a->b"}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Edge
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != e {
		t.Errorf("Expected %+v, got %+v", e, decoded)
	}

	if err := json.Unmarshal([]byte(`{"label":"broken"}`), &decoded); !errors.Is(err, ErrMalformedEdge) {
		t.Errorf("Expected ErrMalformedEdge for broken label, got %v", err)
	}
}
