package manifest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openaddresses/batch-sub000/internal/apperr"
)

func TestCheckReference(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{
			ref:  "https://raw.githubusercontent.com/openaddresses/openaddresses/abc/sources/us/pa/bucks.json",
			want: "https://raw.githubusercontent.com/openaddresses/openaddresses/abc/sources/us/pa/bucks.json",
		},
		{
			ref:  "https://github.com/openaddresses/openaddresses/blob/master/sources/us/pa/bucks.json",
			want: "https://raw.githubusercontent.com/openaddresses/openaddresses/master/sources/us/pa/bucks.json",
		},
		{ref: "https://example.com/sources/us/pa/bucks.json", wantErr: true},
		{ref: "http://github.com/openaddresses/openaddresses/blob/master/x.json", wantErr: true},
		{ref: "not a url", wantErr: true},
	}
	for _, tt := range tests {
		got, err := CheckReference(tt.ref)
		if tt.wantErr {
			if !errors.Is(err, apperr.ErrInvalidJobReference) {
				t.Errorf("CheckReference(%q) err = %v, want InvalidJobReference", tt.ref, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("CheckReference(%q): %v", tt.ref, err)
			continue
		}
		if got != tt.want {
			t.Errorf("CheckReference(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"valid", `{"schema":2,"layers":{"addresses":[{"name":"city"}]}}`, false},
		{"schema 1", `{"schema":1,"layers":{}}`, true},
		{"no layers", `{"schema":2}`, true},
		{"bad json", `{"schema":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestExplode(t *testing.T) {
	src, err := Parse([]byte(`{
		"schema": 2,
		"layers": {
			"parcels": [{"name": "county"}],
			"addresses": [{"name": "city"}, {"name": "county"}, {"protocol": "http"}]
		}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got, errs := Explode("https://raw.githubusercontent.com/o/r/sha/sources/us/pa/bucks.json", src)
	if len(errs) != 1 {
		t.Errorf("errs = %v, want one unnamed-entry error", errs)
	}
	want := []Triple{
		{Layer: "addresses", Name: "city"},
		{Layer: "addresses", Name: "county"},
		{Layer: "parcels", Name: "county"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d triples, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Layer != want[i].Layer || got[i].Name != want[i].Name {
			t.Errorf("triple[%d] = %+v, want layer=%s name=%s", i, got[i], want[i].Layer, want[i].Name)
		}
		if got[i].Source == "" {
			t.Errorf("triple[%d] has no source", i)
		}
	}
}

func TestHTTPFetcher_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("User-Agent = %q, want %q", r.Header.Get("User-Agent"), UserAgent)
		}
		switch r.URL.Path {
		case "/ok.json":
			w.Write([]byte(`{"schema":2,"layers":{}}`))
		case "/broken.json":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client())
	ctx := context.Background()

	src, err := Fetch(ctx, f, srv.URL+"/ok.json")
	if err != nil {
		t.Fatalf("Fetch ok: %v", err)
	}
	if src.Schema != 2 {
		t.Errorf("Schema = %d, want 2", src.Schema)
	}

	if _, err := f.Get(ctx, srv.URL+"/missing.json"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v, want NotFound", err)
	}
	if _, err := f.Get(ctx, srv.URL+"/broken.json"); !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("broken err = %v, want UpstreamFailure", err)
	}
}
