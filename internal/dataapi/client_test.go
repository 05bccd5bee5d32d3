package dataapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestRedeemablePositions_Pages(t *testing.T) {
	const pageLimit = 2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("redeemable"); got != "true" {
			t.Errorf("redeemable param = %q, want true", got)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		switch offset {
		case 0:
			io.WriteString(w, `[
				{"conditionId": "0xaaa", "outcomeIndex": 0, "size": 5, "title": "BTC up?"},
				{"conditionId": "0xaaa", "outcomeIndex": 1, "size": 5, "title": "BTC up?"}
			]`)
		case 2:
			io.WriteString(w, `[{"conditionId": "0xbbb", "outcomeIndex": 0, "size": 3, "negativeRisk": true}]`)
		default:
			t.Errorf("unexpected offset %d", offset)
			io.WriteString(w, `[]`)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got, err := c.RedeemablePositions(context.Background(), "0xwallet", 0, pageLimit)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 positions across pages, got %d", len(got))
	}
	if got[2].ConditionID != "0xbbb" || !got[2].NegativeRisk {
		t.Fatalf("last position mismatch: %+v", got[2])
	}
}

func TestRedeemablePositions_RequiresUser(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.RedeemablePositions(context.Background(), "  ", 0, 0); err == nil {
		t.Fatalf("expected error for blank user")
	}
}

func TestRedeemablePositions_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream sad", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.RedeemablePositions(context.Background(), "0xwallet", 0, 0)
	if err == nil {
		t.Fatalf("expected error on 502")
	}
	if want := fmt.Sprintf("status=%d", http.StatusBadGateway); !strings.Contains(err.Error(), want) {
		t.Fatalf("error should carry status: %v", err)
	}
}
