package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"sync"
	"time"
)

// record mirrors one spreadsheet row as the real endpoint serves it.
type record struct {
	Lat           string `json:"lat"`
	Lng           string `json:"lng"`
	StinkLevel    string `json:"stinkLevel"`
	StinkDuration string `json:"stinkDuration"`
	Comment       string `json:"comment"`
	CreatedAt     string `json:"createdAt"`
}

var callbackName = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

type sheet struct {
	mu   sync.Mutex
	rows []record
}

func (s *sheet) append(r record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	return len(s.rows)
}

func (s *sheet) snapshot() []record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record(nil), s.rows...)
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	failing := flag.Bool("fail", false, "answer every call with success:false")
	delay := flag.Duration("delay", 0, "artificial latency per call")
	flag.Parse()

	now := time.Now().UTC()
	data := &sheet{rows: []record{
		{Lat: "40.7128", Lng: "-74.0060", StinkLevel: "A little", StinkDuration: "Just started", Comment: "bakery exhaust", CreatedAt: now.Add(-2 * time.Hour).Format(time.RFC3339)},
		{Lat: "40.7306", Lng: "-73.9352", StinkLevel: "Really bad", StinkDuration: "All day", Comment: "sewer backup", CreatedAt: now.Add(-26 * time.Hour).Format(time.RFC3339)},
		{Lat: "40.6782", Lng: "-73.9442", StinkLevel: "unbearable", StinkDuration: "Never ending", Comment: "", CreatedAt: now.Add(-9 * 24 * time.Hour).Format(time.RFC3339)},
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/exec", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		callback := q.Get("callback")
		if !callbackName.MatchString(callback) {
			http.Error(w, "missing or invalid callback", http.StatusBadRequest)
			return
		}
		if *delay > 0 {
			time.Sleep(*delay)
		}
		if *failing {
			writeScript(w, callback, map[string]any{"success": false, "error": "mock endpoint configured to fail"})
			return
		}
		if q.Has("lat") {
			n := data.append(record{
				Lat:           q.Get("lat"),
				Lng:           q.Get("lng"),
				StinkLevel:    q.Get("stinkLevel"),
				StinkDuration: q.Get("stinkDuration"),
				Comment:       q.Get("comment"),
				CreatedAt:     q.Get("createdAt"),
			})
			writeScript(w, callback, map[string]any{"success": true, "row": n})
			return
		}
		writeScript(w, callback, data.snapshot())
	})

	logger := log.New(log.Writer(), "endpoint-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s (endpoint url http://localhost%s/exec)", *addr, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// writeScript answers the way the spreadsheet script does: a JavaScript call
// of the requested callback with the JSON payload.
func writeScript(w http.ResponseWriter, callback string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("encode error: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = fmt.Fprintf(w, "%s(%s);", callback, body)
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
