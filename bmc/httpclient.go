/*
 * Copyright 2025 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bmc

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/comcast/bmcconf/buildinfo"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

type ctxKey string

const (
	proxyHostKey     ctxKey = "proxy-host"
	requestMethodKey ctxKey = "request-method"
)

// WithProxyURL returns a new context that carries an override proxy URL.
func WithProxyURL(ctx context.Context, proxy string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, proxyHostKey, proxy)
}

func proxyURLFromContext(ctx context.Context) *url.URL {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(proxyHostKey).(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil
	}
	return u
}

// HTTPOptions tunes the transport used to talk to a controller.
type HTTPOptions struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	RetryMax           int
	RetryWait          time.Duration
}

// NewHTTPClient builds a retryablehttp client honoring proxy from context override,
// otherwise falling back to standard HTTP(S)_PROXY/NO_PROXY environment variables.
func NewHTTPClient(ctx context.Context, opts HTTPOptions) *retryablehttp.Client {
	tr := &http.Transport{
		Dial:                  (&net.Dialer{Timeout: 3 * time.Second}).Dial,
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          1,
		MaxConnsPerHost:       1,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
			Renegotiation:      tls.RenegotiateOnceAsClient,
		},
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if p := proxyURLFromContext(ctx); p != nil {
		proxy := *p
		tr.Proxy = func(r *http.Request) (*url.URL, error) { return &proxy, nil }
	}

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait == 0 {
		opts.RetryWait = 2 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.CheckRetry = checkRetry
	// hand the last response back to the caller so redfish error bodies can be decoded
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Transport = &userAgentTransport{next: tr}
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = leveledLogger{zap.S()}
	retryClient.RetryWaitMin = opts.RetryWait
	retryClient.RetryWaitMax = opts.RetryWait
	retryClient.RetryMax = opts.RetryMax

	return retryClient
}

// StandardClient wraps the retrying client in a stdlib *http.Client. Requests made
// through it carry their method to checkRetry, so writes are retried only when
// the connection could not be established.
func StandardClient(c *retryablehttp.Client) *http.Client {
	return &http.Client{
		Transport: &methodTransport{next: &retryablehttp.RoundTripper{Client: c}},
	}
}

type methodTransport struct {
	next http.RoundTripper
}

func (t *methodTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(r.WithContext(withRequestMethod(r.Context(), r.Method)))
}

func withRequestMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, requestMethodKey, method)
}

func requestMethod(ctx context.Context, resp *http.Response) string {
	if m, _ := ctx.Value(requestMethodKey).(string); m != "" {
		return m
	}
	if resp != nil && resp.Request != nil {
		return resp.Request.Method
	}
	return ""
}

// checkRetry retries idempotent reads on the default policy. A write is only
// replayed when it never left this host: one that timed out or returned an
// error status may already have been applied by the controller.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	switch requestMethod(ctx, resp) {
	case "", http.MethodGet, http.MethodHead:
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return resp == nil && isDialError(err), nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	return opErr.Op == "dial" || opErr.Op == "proxyconnect"
}

type userAgentTransport struct {
	next http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", buildinfo.UserAgent())
	return t.next.RoundTrip(r)
}

// leveledLogger routes retryablehttp logging through zap
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
