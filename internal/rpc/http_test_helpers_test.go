package rpc

import (
	"bytes"
	"io"
	"net/http"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripFunc) *http.Client {
	return &http.Client{Transport: rt}
}

func scriptResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

// echoCallback answers with callback(<payload>) using the request's token.
func echoCallback(payload string) roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		name := req.URL.Query().Get("callback")
		return scriptResponse(http.StatusOK, name+"("+payload+");"), nil
	}
}
