package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sarraf_go/internal/domain"
	"sarraf_go/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type fakeBootstrap struct {
	records []domain.PriceRecord
	meta    domain.PriceMeta
}

func (f *fakeBootstrap) Current() ([]domain.PriceRecord, domain.PriceMeta) {
	return f.records, f.meta
}

func record(code string, satis float64) domain.PriceRecord {
	return domain.PriceRecord{
		Code:            code,
		Name:            code,
		CalculatedSatis: decimal.NewFromFloat(satis),
		IsVisible:       true,
	}
}

func startHub(t *testing.T, bootstrap BootstrapSource) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(bootstrap, &infra.Metrics{})
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var frame envelope
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return frame
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BootstrapSeedOnConnect(t *testing.T) {
	meta := domain.PriceMeta{Time: time.Now().Truncate(time.Millisecond)}
	bootstrap := &fakeBootstrap{
		records: []domain.PriceRecord{record("GRAM24", 2010), record("USDTRY", 32.40)},
		meta:    meta,
	}
	_, conn := startHub(t, bootstrap)

	frame := readFrame(t, conn)
	if frame.Event != EventPriceUpdate {
		t.Errorf("event: expected %q, got %q", EventPriceUpdate, frame.Event)
	}
	if len(frame.Payload.Prices) != 2 {
		t.Fatalf("expected 2 seeded prices, got %d", len(frame.Payload.Prices))
	}
	if !frame.Payload.Meta.Time.Equal(meta.Time) {
		t.Errorf("meta time not carried through: %v", frame.Payload.Meta.Time)
	}
}

func TestHub_NoSeedWhenAllTiersEmpty(t *testing.T) {
	hub, conn := startHub(t, &fakeBootstrap{})
	waitForClients(t, hub, 1)

	// Only the explicit broadcast should arrive, never an empty seed frame.
	hub.Broadcast([]domain.PriceRecord{record("USDTRY", 32.40)}, domain.PriceMeta{})

	frame := readFrame(t, conn)
	if len(frame.Payload.Prices) != 1 || frame.Payload.Prices[0].Code != "USDTRY" {
		t.Fatalf("first frame must be the broadcast, got %+v", frame.Payload.Prices)
	}
}

func TestHub_BroadcastReachesViewer(t *testing.T) {
	hub, conn := startHub(t, nil)
	waitForClients(t, hub, 1)

	at := time.Now().Truncate(time.Millisecond)
	hub.Broadcast([]domain.PriceRecord{record("GRAM24", 2013.50)}, domain.PriceMeta{Time: at})

	frame := readFrame(t, conn)
	if frame.Event != EventPriceUpdate {
		t.Errorf("unexpected event %q", frame.Event)
	}
	if !frame.Payload.Meta.Time.Equal(at) {
		t.Errorf("meta time: got %v", frame.Payload.Meta.Time)
	}
	if !frame.Payload.Prices[0].CalculatedSatis.Equal(decimal.NewFromFloat(2013.50)) {
		t.Errorf("satis corrupted: %v", frame.Payload.Prices[0].CalculatedSatis)
	}
}

func TestHub_EmptyBroadcastSuppressed(t *testing.T) {
	hub, conn := startHub(t, nil)
	waitForClients(t, hub, 1)

	hub.Broadcast(nil, domain.PriceMeta{})
	hub.Broadcast([]domain.PriceRecord{}, domain.PriceMeta{})
	hub.Broadcast([]domain.PriceRecord{record("USDTRY", 32.40)}, domain.PriceMeta{})

	// The first frame the viewer sees must be the non-empty one.
	frame := readFrame(t, conn)
	if len(frame.Payload.Prices) != 1 {
		t.Fatalf("empty pushes must never reach the wire, got %d prices", len(frame.Payload.Prices))
	}
}

func TestHub_CloseRejectsLateConnects(t *testing.T) {
	bootstrap := &fakeBootstrap{records: []domain.PriceRecord{record("GRAM24", 2010)}}
	hub := NewHub(bootstrap, &infra.Metrics{})
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	readFrame(t, conn)

	hub.Close()
	waitForClients(t, hub, 0)

	// A viewer arriving after shutdown is turned away: no registration,
	// no seed frame, and in particular no send on a closed channel.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		late.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		if _, _, readErr := late.ReadMessage(); readErr == nil {
			t.Error("closed hub must not seed new viewers")
		}
		late.Close()
	}
	if hub.ClientCount() != 0 {
		t.Errorf("closed hub must not register viewers, have %d", hub.ClientCount())
	}
}

func TestHub_ClientCountTracksDisconnect(t *testing.T) {
	hub, conn := startHub(t, nil)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
