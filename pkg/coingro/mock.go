// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package coingro

import (
	"io"
	"net/http"
	"strings"
)

type RoundTripFunc func(req *http.Request) *http.Response

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

// NewMockClient returns a Client whose transport is replaced by fn.
func NewMockClient(fn RoundTripFunc) Client {
	return NewMockClientWithAuth(BasicAuth{}, fn)
}

func NewMockClientWithAuth(u BasicAuth, transport http.RoundTripper) Client {
	return &client{baseClient{
		User:     u,
		HTTP:     &http.Client{Transport: transport},
		Endpoint: "http://bot-example",
	}}
}

func NewMockResponse(statusCode int, r *http.Request, body string) *http.Response {
	return &http.Response{
		Status:     http.StatusText(statusCode),
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    r,
	}
}
