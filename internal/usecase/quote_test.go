package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"RateGate/internal/service/cache"
	xhttp "RateGate/pkg/http"
)

type fakeUpstream struct {
	calls int
	body  []byte
	err   error
}

func (u *fakeUpstream) Quote(_ context.Context, symbol string) ([]byte, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	return u.body, nil
}

func TestGetQuoteCachesUpstream(t *testing.T) {
	up := &fakeUpstream{body: []byte(`{"c":101.5}`)}
	m := newFakeMetrics()
	uc := NewQuoteUseCase(up, cache.NewTTLCache(), time.Minute, m, nil)

	first, err := uc.GetQuote(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if first.Symbol != "AAPL" || first.Cached {
		t.Fatalf("first=%+v", first)
	}

	second, err := uc.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if !second.Cached || string(second.Quote) != `{"c":101.5}` {
		t.Fatalf("second=%+v", second)
	}
	if up.calls != 1 {
		t.Fatalf("upstream calls=%d, want 1", up.calls)
	}
}

func TestGetQuoteNoCache(t *testing.T) {
	up := &fakeUpstream{body: []byte(`{}`)}
	uc := NewQuoteUseCase(up, nil, time.Minute, newFakeMetrics(), nil)
	for i := 0; i < 2; i++ {
		if _, err := uc.GetQuote(context.Background(), "MSFT"); err != nil {
			t.Fatalf("GetQuote: %v", err)
		}
	}
	if up.calls != 2 {
		t.Fatalf("upstream calls=%d, want 2", up.calls)
	}
}

func TestGetQuoteErrors(t *testing.T) {
	tests := []struct {
		name       string
		symbol     string
		up         *fakeUpstream
		wantStatus int
	}{
		{name: "empty symbol", symbol: "  ", up: &fakeUpstream{}, wantStatus: http.StatusBadRequest},
		{name: "not found", symbol: "ZZZ", up: &fakeUpstream{err: &xhttp.StatusError{Code: 404}}, wantStatus: http.StatusNotFound},
		{name: "upstream throttled", symbol: "A", up: &fakeUpstream{err: &xhttp.StatusError{Code: 429}}, wantStatus: http.StatusServiceUnavailable},
		{name: "upstream 500", symbol: "A", up: &fakeUpstream{err: &xhttp.StatusError{Code: 500}}, wantStatus: http.StatusBadGateway},
		{name: "timeout", symbol: "A", up: &fakeUpstream{err: context.DeadlineExceeded}, wantStatus: http.StatusServiceUnavailable},
		{name: "transport", symbol: "A", up: &fakeUpstream{err: errors.New("connection refused")}, wantStatus: http.StatusBadGateway},
		{name: "malformed body", symbol: "A", up: &fakeUpstream{body: []byte("not json")}, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewQuoteUseCase(tt.up, cache.NewTTLCache(), time.Minute, newFakeMetrics(), nil)
			_, err := uc.GetQuote(context.Background(), tt.symbol)
			var appErr *xhttp.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *AppError, got %v", err)
			}
			if appErr.Status != tt.wantStatus {
				t.Fatalf("status=%d, want %d", appErr.Status, tt.wantStatus)
			}
		})
	}
}

func TestGetQuoteUpstreamRetryAfter(t *testing.T) {
	up := &fakeUpstream{err: &xhttp.StatusError{Code: 429, RetryAfter: 12}}
	uc := NewQuoteUseCase(up, nil, 0, newFakeMetrics(), nil)
	_, err := uc.GetQuote(context.Background(), "A")
	var appErr *xhttp.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %v", err)
	}
	if appErr.Params["retry_after_seconds"] != int64(12) {
		t.Fatalf("params=%v", appErr.Params)
	}
}

func TestGetQuotesStopsOnError(t *testing.T) {
	up := &fakeUpstream{err: &xhttp.StatusError{Code: 404}}
	uc := NewQuoteUseCase(up, nil, 0, newFakeMetrics(), nil)
	if _, err := uc.GetQuotes(context.Background(), []string{"A", "B"}); err == nil {
		t.Fatalf("expected error")
	}
	if up.calls != 1 {
		t.Fatalf("upstream calls=%d, want 1", up.calls)
	}
}

func TestSplitSymbols(t *testing.T) {
	got := SplitSymbols("aapl, msft,,AAPL , goog")
	want := []string{"AAPL", "MSFT", "GOOG"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
