/*
Copyright 2023-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

// Package cbconfig fetches and watches bucket configurations from the
// cluster management REST endpoints.
package cbconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type FetcherOptions struct {
	HttpClient *http.Client
	Host       string
	Username   string
	Password   string
	Logger     *zap.Logger
}

// Fetcher retrieves terse bucket configurations over HTTP with basic auth.
type Fetcher struct {
	httpClient *http.Client
	host       string
	username   string
	password   string
	logger     *zap.Logger
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	httpClient := opts.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		httpClient: httpClient,
		host:       opts.Host,
		username:   opts.Username,
		password:   opts.Password,
		logger:     logger,
	}
}

// used to derive the hostname to use for $HOST replacement
func (f *Fetcher) deriveHostname() string {
	u, err := url.Parse(f.host)
	if err != nil {
		return f.host
	}

	return u.Hostname()
}

func (f *Fetcher) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, f.host+path, nil)
	if err != nil {
		return nil, err
	}

	if f.username != "" || f.password != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	return req, nil
}

func (f *Fetcher) doGetJsonConfig(ctx context.Context, path string, data any) error {
	req, err := f.newRequest(ctx, "GET", path)
	if err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to fetch config")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Error("unexpected close error", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("config fetch returned status %d", resp.StatusCode)
	}

	// the server writes $HOST where the queried node does not know its
	// own externally reachable name
	var configBytes json.RawMessage
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&configBytes); err != nil {
		return errors.Wrap(err, "failed to read config body")
	}

	configBytes = bytes.ReplaceAll(configBytes,
		[]byte("$HOST"), []byte(f.deriveHostname()))

	if err := json.Unmarshal(configBytes, data); err != nil {
		return errors.Wrap(err, "failed to parse config body")
	}

	return nil
}

// FetchTerseBucketConfig retrieves the current terse configuration for one
// bucket.
func (f *Fetcher) FetchTerseBucketConfig(ctx context.Context, bucketName string) (*TerseConfigJson, error) {
	path := fmt.Sprintf("/pools/default/b/%s", url.PathEscape(bucketName))

	var config TerseConfigJson
	if err := f.doGetJsonConfig(ctx, path, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
