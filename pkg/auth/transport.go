package auth

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that authorizes requests with the
// session's current token. When the API answers 401 it performs a reactive
// refresh and replays the request once with the new token.
//
// Requests that already carry an Authorization header pass through
// untouched, which keeps the refresh call itself out of the loop.
type Transport struct {
	// Base is the underlying transport. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// Session supplies the token and performs the refresh.
	Session *SessionManager
	// ShowLoading shows the loading indicator during a reactive refresh.
	ShowLoading bool
}

// NewAuthenticatedClient returns a copy of client whose requests go through
// a Transport bound to session.
func NewAuthenticatedClient(client *http.Client, session *SessionManager) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	c := *client
	c.Transport = &Transport{Base: client.Transport, Session: session, ShowLoading: true}
	return &c
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Session == nil || req.Header.Get("Authorization") != "" {
		return t.base().RoundTrip(req)
	}

	auth := t.Session.Authorization()
	if auth == "" {
		return t.base().RoundTrip(req)
	}

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	first, err := authorize(req, auth, getBody)
	if err != nil {
		return nil, err
	}
	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if !t.Session.ManualRefresh(req.Context(), t.ShowLoading) {
		return resp, nil
	}
	next := t.Session.Authorization()
	if next == "" || next == auth {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	retry, err := authorize(req, next, getBody)
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(retry)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// replayableBody returns a function producing fresh copies of the request
// body, or nil when there is no body.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func authorize(req *http.Request, auth string, getBody func() (io.ReadCloser, error)) (*http.Request, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", auth)
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		r.Body = body
		r.GetBody = getBody
	}
	return r, nil
}
