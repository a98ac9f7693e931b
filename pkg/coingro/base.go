// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package coingro implements the HTTP client for the REST API every managed
// bot exposes. The aggregation server forwards user requests through it and
// the reconciler uses it to pull trade statistics.
//
// Responses are returned as raw JSON so proxied payloads reach the caller
// byte for byte; typed models in this package decode the subset of fields
// the controller itself consumes.
package coingro

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/coingro/coingro-controller/pkg/cgerr"
	ulog "github.com/coingro/coingro-controller/pkg/utils/log"
)

var log = ulog.Log.WithName("coingro-client")

const (
	requestTimeout = 30 * time.Second

	retryAttempts = 3
	retryDelay    = time.Second
)

// BasicAuth are the credentials every managed bot's API server is provisioned
// with (cg_api_server_username/cg_api_server_password).
type BasicAuth struct {
	Name     string
	Password string
}

type baseClient struct {
	User     BasicAuth
	HTTP     *http.Client
	Endpoint string
}

// Close idle connections in the underlying http client.
// Should be called once this client is not used anymore.
func (c *baseClient) Close() {
	if c.HTTP != nil {
		// The keep-alive goroutines of the transport outlive the client,
		// and clients get recreated whenever a bot's address changes.
		c.HTTP.CloseIdleConnections()
	}
}

// doRequest performs one HTTP exchange, retrying transport-level failures.
// An HTTP response is returned as-is whatever its status code: the bot
// answered, retrying would only repeat the same request.
func (c *baseClient) doRequest(ctx context.Context, method, rawurl string, body []byte) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(
		func() error {
			var reader io.Reader = http.NoBody
			if body != nil {
				reader = bytes.NewReader(body)
			}
			request, err := http.NewRequestWithContext(ctx, method, rawurl, reader)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			request.Header.Set("Accept", "application/json")
			request.Header.Set("Content-Type", "application/json")
			if c.User != (BasicAuth{}) {
				request.SetBasicAuth(c.User.Name, c.User.Password)
			}

			log.V(1).Info("Coingro API request", "method", method, "url", request.URL.Redacted())
			response, err := c.HTTP.Do(request)
			if err != nil {
				return err
			}
			resp = response
			return nil
		},
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, cgerr.NewTemporary(err, "coingro API request failed for "+rawurl)
	}
	return resp, nil
}

// request performs a new http request against the bot's API.
//
// If requestObj is not nil it is marshalled as JSON and used as the request
// body. The raw response body is returned on 2xx, an *APIError carrying the
// body otherwise.
func (c *baseClient) request(ctx context.Context, method, pathWithQuery string, requestObj interface{}) (json.RawMessage, error) {
	var body []byte
	if requestObj != nil {
		data, err := json.Marshal(requestObj)
		if err != nil {
			return nil, errors.Wrap(err, "could not encode request body")
		}
		body = data
	}

	resp, err := c.doRequest(ctx, method, c.Endpoint+"/"+pathWithQuery, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cgerr.NewTemporary(err, "could not read coingro API response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.Status, resp.StatusCode, data)
	}
	return data, nil
}

func (c *baseClient) get(ctx context.Context, pathWithQuery string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, pathWithQuery, nil)
}

func (c *baseClient) post(ctx context.Context, pathWithQuery string, requestObj interface{}) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, pathWithQuery, requestObj)
}

func (c *baseClient) delete(ctx context.Context, pathWithQuery string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodDelete, pathWithQuery, nil)
}

// withQuery appends an encoded query string to path when params is non-empty.
func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
