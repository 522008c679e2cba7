package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sarraf_go/internal/domain"

	"github.com/shopspring/decimal"
)

func serveJSON(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetch_BareArray(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `[
		{"code":"USDTRY","name":"Dolar","alis":32.10,"satis":32.40},
		{"code":"GRAM24","name":"Gram Altın","alis":"2000.5","satis":"2010.75"}
	]`)

	client := NewClient(server.URL, time.Second)
	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].RawAlis.Equal(decimal.NewFromFloat(32.10)) {
		t.Errorf("numeric quote: got %v", records[0].RawAlis)
	}
	// Quoted numeric strings must decode with full precision.
	if !records[1].RawSatis.Equal(decimal.RequireFromString("2010.75")) {
		t.Errorf("string quote: got %v", records[1].RawSatis)
	}
}

func TestFetch_DataEnvelope(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `{"data":[{"code":"USDTRY","name":"Dolar","alis":32.10,"satis":32.40}]}`)

	client := NewClient(server.URL, time.Second)
	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Code != "USDTRY" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestFetch_NonNumericQuotesExcluded(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `[
		{"code":"USDTRY","name":"Dolar","alis":32.10,"satis":32.40},
		{"code":"BOZUK","name":"Bozuk","alis":"-","satis":null},
		{"code":"","name":"Adsız","alis":1,"satis":2}
	]`)

	client := NewClient(server.URL, time.Second)
	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Code != "USDTRY" {
		t.Errorf("unusable items must be excluded, not zeroed: %+v", records)
	}
}

func TestFetch_EmptyFeed(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `[]`)

	client := NewClient(server.URL, time.Second)
	if _, err := client.Fetch(context.Background()); !errors.Is(err, domain.ErrEmptyFeed) {
		t.Errorf("expected ErrEmptyFeed, got %v", err)
	}
}

func TestFetch_BadStatus(t *testing.T) {
	server := serveJSON(t, http.StatusBadGateway, `upstream down`)

	client := NewClient(server.URL, time.Second)
	_, err := client.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("expected a network error, got %T", err)
	}
}

func TestFetch_MalformedBody(t *testing.T) {
	server := serveJSON(t, http.StatusOK, `<html>not json</html>`)

	client := NewClient(server.URL, time.Second)
	if _, err := client.Fetch(context.Background()); !errors.Is(err, domain.ErrFeedUnavailable) {
		t.Errorf("expected ErrFeedUnavailable, got %v", err)
	}
}
