package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stinkmap/stinkmap/internal/models"
)

func newClient(t *testing.T, rt roundTripFunc, timeout time.Duration, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(newTestClient(rt))}, opts...)
	client, err := NewClient("https://script.example.com/exec?deployment=abc", timeout, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestFetchAllDecodesReports(t *testing.T) {
	var seen *http.Request
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		seen = req
		return echoCallback(`[
			{"lat":42.87,"lng":-76.98,"stinkLevel":"A lot","stinkDuration":"All day","comment":"sewer","createdAt":"2024-01-01T23:00:00.000Z"},
			{"lat":"42.1","lng":"-76.5","stinkLevel":"xyz","stinkDuration":"forever","createdAt":"2024-01-02T01:00:00Z"},
			42
		]`)(req)
	}, time.Second, WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))

	reports, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Category != models.CategoryStrong || reports[0].Duration != models.DurationAllDay {
		t.Fatalf("unexpected first report: %+v", reports[0])
	}
	if !reports[1].Malformed() || reports[1].Position.Lat != 42.1 {
		t.Fatalf("expected malformed but kept second report: %+v", reports[1])
	}

	query := seen.URL.Query()
	if query.Get("deployment") != "abc" {
		t.Fatalf("endpoint query lost: %s", seen.URL)
	}
	if query.Get("t") != "1700000000000" {
		t.Fatalf("expected cache buster, got %q", query.Get("t"))
	}
	if client.Pending() != 0 {
		t.Fatalf("expected empty correlation table, got %d", client.Pending())
	}
}

func TestCallServerError(t *testing.T) {
	client := newClient(t, echoCallback(`{"success":false,"error":"sheet locked"}`), time.Second)

	_, err := client.FetchAll(context.Background())
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected server error, got %v", err)
	}
	if serverErr.Message != "sheet locked" {
		t.Fatalf("unexpected message %q", serverErr.Message)
	}
	if IsTransient(err) {
		t.Fatalf("server error must not be transient")
	}
}

func TestCallTransportFailure(t *testing.T) {
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		return scriptResponse(http.StatusNotFound, "not found"), nil
	}, time.Second)

	_, err := client.Call(context.Background(), nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if client.Pending() != 0 {
		t.Fatalf("expected cleanup after failure, pending=%d", client.Pending())
	}
}

func TestCallWrongCallbackIsTransportFailure(t *testing.T) {
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		return scriptResponse(http.StatusOK, `someoneElse([])`), nil
	}, time.Second)

	_, err := client.Call(context.Background(), nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCallNamingAnotherLiveTokenLeavesItPending(t *testing.T) {
	bToken := make(chan string, 1)
	aDone := make(chan struct{})
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		if q.Get("id") == "b" {
			bToken <- q.Get("callback")
			<-aDone
			return scriptResponse(http.StatusOK, q.Get("callback")+`({"from":"b"});`), nil
		}
		return scriptResponse(http.StatusOK, <-bToken+`({"from":"a"});`), nil
	}, 2*time.Second)

	type outcome struct {
		payload json.RawMessage
		err     error
	}
	bResult := make(chan outcome, 1)
	go func() {
		payload, err := client.Call(context.Background(), map[string][]string{"id": {"b"}})
		bResult <- outcome{payload, err}
	}()

	_, err := client.Call(context.Background(), map[string][]string{"id": {"a"}})
	close(aDone)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error for the mismatched response, got %v", err)
	}

	b := <-bResult
	if b.err != nil {
		t.Fatalf("second call failed: %v", b.err)
	}
	if string(b.payload) != `{"from":"b"}` {
		t.Fatalf("second call settled with foreign payload %s", b.payload)
	}
	if client.Pending() != 0 {
		t.Fatalf("expected empty table, got %d", client.Pending())
	}
}

func TestCallTimesOut(t *testing.T) {
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}, 30*time.Millisecond)

	start := time.Now()
	_, err := client.Call(context.Background(), nil)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatalf("timeout should be treated like a transport failure")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout took too long")
	}
	if client.Pending() != 0 {
		t.Fatalf("expected cleanup after timeout, pending=%d", client.Pending())
	}
}

func TestConcurrentCallsResolveOwnEntries(t *testing.T) {
	const calls = 20
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		id, _ := strconv.Atoi(req.URL.Query().Get("id"))
		// Later calls finish first.
		time.Sleep(time.Duration(calls-id) * time.Millisecond)
		name := req.URL.Query().Get("callback")
		return scriptResponse(http.StatusOK, fmt.Sprintf(`%s({"id":%d,"token":%q})`, name, id, name)), nil
	}, 5*time.Second)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens = make(map[string]int)
		errs   []error
	)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			payload, err := client.Call(context.Background(), map[string][]string{"id": {strconv.Itoa(id)}})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			var body struct {
				ID    int    `json:"id"`
				Token string `json:"token"`
			}
			if err := json.Unmarshal(payload, &body); err != nil {
				errs = append(errs, err)
				return
			}
			if body.ID != id {
				errs = append(errs, fmt.Errorf("call %d resolved with payload for %d", id, body.ID))
			}
			tokens[body.Token]++
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(tokens) != calls {
		t.Fatalf("expected %d distinct tokens, got %d", calls, len(tokens))
	}
	if client.Pending() != 0 {
		t.Fatalf("expected empty table, got %d", client.Pending())
	}
}

func TestDispatchIsIdempotent(t *testing.T) {
	tokens := make(chan string, 1)
	release := make(chan struct{})
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		name := req.URL.Query().Get("callback")
		tokens <- name
		<-release
		return scriptResponse(http.StatusOK, name+`({"n":2})`), nil
	}, time.Second)

	type outcome struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := client.Call(context.Background(), nil)
		done <- outcome{payload, err}
	}()

	token := <-tokens
	if !client.Dispatch([]byte(token + `({"n":1});`)) {
		t.Fatalf("expected first dispatch to resolve the call")
	}
	res := <-done
	if res.err != nil || string(res.payload) != `{"n":1}` {
		t.Fatalf("unexpected result: %s %v", res.payload, res.err)
	}
	if client.Dispatch([]byte(token + `({"n":3})`)) {
		t.Fatalf("second dispatch must be a no-op")
	}
	close(release)
	if client.Pending() != 0 {
		t.Fatalf("expected empty table, got %d", client.Pending())
	}
}

func TestTokensUniqueAmongInFlight(t *testing.T) {
	// A token source that repeats itself must not produce duplicate live tokens.
	var mu sync.Mutex
	seq := []string{"jsonp_callback_1", "jsonp_callback_1", "jsonp_callback_2"}
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		tok := seq[0]
		if len(seq) > 1 {
			seq = seq[1:]
		}
		return tok
	}
	client := newClient(t, echoCallback(`[]`), time.Second, WithTokenSource(next))

	first, _ := client.register()
	second, _ := client.register()
	if first == second {
		t.Fatalf("expected distinct tokens, both %s", first)
	}
	client.resolve(first, result{})
	client.resolve(second, result{})
}

func TestGoRecoversHandlerPanic(t *testing.T) {
	client := newClient(t, echoCallback(`[]`), time.Second)
	finished := make(chan struct{})
	client.Go(context.Background(), nil, func(json.RawMessage, error) {
		defer close(finished)
		panic("handler blew up")
	})
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never ran")
	}
	if client.Pending() != 0 {
		t.Fatalf("expected empty table, got %d", client.Pending())
	}
}

func TestSubmitSendsReportParams(t *testing.T) {
	var seen *http.Request
	client := newClient(t, func(req *http.Request) (*http.Response, error) {
		seen = req
		return echoCallback(`{"success":true}`)(req)
	}, time.Second)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	report := models.NewReport(42.5, -76.25, models.CategorySevere, models.DurationJustStarted, "near the plant", created)
	if _, err := client.Submit(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := seen.URL.Query()
	checks := map[string]string{
		"lat":           "42.5",
		"lng":           "-76.25",
		"stinkLevel":    "Really bad",
		"stinkDuration": "Just started",
		"comment":       "near the plant",
		"createdAt":     "2024-03-01T12:00:00.000Z",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Fatalf("param %s: expected %q, got %q", key, want, got)
		}
	}
	if q.Get("callback") == "" {
		t.Fatalf("missing callback param")
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient("  ", time.Second); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
