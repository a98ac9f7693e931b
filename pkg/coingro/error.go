// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package coingro

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorResponse is the error document the bot's API server produces,
// typically {"detail": ...}.
type ErrorResponse struct {
	Detail interface{} `json:"detail"`
}

// APIError is a non 2xx response from the bot API.
type APIError struct {
	Status        string
	StatusCode    int
	Body          json.RawMessage
	ErrorResponse ErrorResponse
}

// newAPIError builds an APIError from a response, attempting to parse the
// body to include the details about the error.
func newAPIError(status string, statusCode int, body []byte) error {
	apiError := &APIError{
		Status:     status,
		StatusCode: statusCode,
		Body:       body,
	}
	var errorResponse ErrorResponse
	if err := json.Unmarshal(body, &errorResponse); err != nil {
		// Not all error bodies are JSON documents, keep the raw body only.
		log.V(1).Info("Unexpected coingro error response", "body", string(body))
		return apiError
	}
	apiError.ErrorResponse = errorResponse
	return apiError
}

// Error implements the error interface.
func (a *APIError) Error() string {
	if a.ErrorResponse.Detail != nil {
		return fmt.Sprintf("%s: %+v", a.Status, a.ErrorResponse.Detail)
	}
	return a.Status
}

// IsUnauthorized checks whether the error was an HTTP 401 error.
func IsUnauthorized(err error) bool {
	return isHTTPError(err, http.StatusUnauthorized)
}

// IsNotFound checks whether the error was an HTTP 404 error.
func IsNotFound(err error) bool {
	return isHTTPError(err, http.StatusNotFound)
}

// Is4xx checks whether the error was an HTTP client error.
func Is4xx(err error) bool {
	apiErr := new(APIError)
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode <= 499
	}
	return false
}

// Is5xx checks whether the error was an HTTP server error.
func Is5xx(err error) bool {
	apiErr := new(APIError)
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599
	}
	return false
}

// AsAPIError extracts an *APIError from err's chain, or nil.
func AsAPIError(err error) *APIError {
	apiErr := new(APIError)
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func isHTTPError(err error, statusCode int) bool {
	apiErr := new(APIError)
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == statusCode
	}
	return false
}
