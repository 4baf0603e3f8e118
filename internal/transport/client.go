package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/metrics"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/rpc"
)

// EmulatorToken is the bearer token sent to a local emulator.
const EmulatorToken = "owner"

const apiClientHeader = "gl-go/%s fsadmin/1.0 rest/1.0"

// Options configure a Client.
type Options struct {
	BaseURL     string
	Routes      *Routes
	Retries     *retry.Table
	HTTPClient  *http.Client
	TokenSource oauth2.TokenSource
	UserAgent   string
	Logger      zerolog.Logger
	RetryOpts   []retry.Option
}

// Client invokes RPCs over their REST binding.
type Client struct {
	baseURL   string
	http      *http.Client
	routes    *Routes
	retries   *retry.Table
	userAgent string
	apiClient string
	logger    zerolog.Logger
	retryOpts []retry.Option
}

// Call names an RPC and its request message.
type Call struct {
	RPC     string
	Request any
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transport: base URL is required")
	}
	if opts.Routes == nil || opts.Retries == nil {
		return nil, fmt.Errorf("transport: routes and retry table are required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.TokenSource != nil {
		base := hc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *hc
		wrapped.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, opts.TokenSource), Base: base}
		hc = &wrapped
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "firestore-admin-go/1.0"
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      hc,
		routes:    opts.Routes,
		retries:   opts.Retries,
		userAgent: ua,
		apiClient: fmt.Sprintf(apiClientHeader, strings.TrimPrefix(runtime.Version(), "go")),
		logger:    opts.Logger,
		retryOpts: opts.RetryOpts,
	}, nil
}

// NewFromConfig builds a client for cfg: TLS from the FIRESTORE_TLS_*
// settings, the static emulator token when an emulator host is set,
// otherwise the configured access token, and the retry table with any
// YAML overrides applied.
func NewFromConfig(cfg *config.Config, logger zerolog.Logger, routes *Routes, retries *retry.Table) (*Client, error) {
	tlsConfig, err := cfg.ClientTLS()
	if err != nil {
		return nil, err
	}
	hc := &http.Client{}
	if tlsConfig != nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsConfig
		hc.Transport = tr
	}

	if cfg.RetryConfigPath != "" {
		if err := retries.LoadOverrides(cfg.RetryConfigPath); err != nil {
			return nil, err
		}
	}

	var ts oauth2.TokenSource
	switch {
	case cfg.UsingEmulator():
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: EmulatorToken})
	case cfg.AccessToken != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	}

	return New(Options{
		BaseURL:     cfg.BaseURL(),
		Routes:      routes,
		Retries:     retries,
		HTTPClient:  hc,
		TokenSource: ts,
		UserAgent:   cfg.UserAgent,
		Logger:      logger,
	})
}

// Invoke sends call under its retry policy and decodes the response into
// out, which may be nil.
func (c *Client) Invoke(ctx context.Context, call Call, out any) error {
	return c.run(ctx, call, func(body io.Reader) (bool, error) {
		if out == nil {
			_, err := io.Copy(io.Discard, body)
			return false, err
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return false, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return false, nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return false, status.Errorf(codes.Internal, "decode %s response: %v", rpc.Short(call.RPC), err)
		}
		return false, nil
	})
}

// Stream invokes a streaming RPC whose REST response is a JSON array and
// hands each element to fn. Attempts are retried only until the first
// element is delivered. An error returned by fn ends the stream and is
// returned as is.
func Stream[T any](ctx context.Context, c *Client, call Call, fn func(*T) error) error {
	return c.run(ctx, call, func(body io.Reader) (bool, error) {
		dec := json.NewDecoder(body)
		tok, err := dec.Token()
		if err != nil {
			return false, status.Errorf(codes.Unavailable, "read %s stream: %v", rpc.Short(call.RPC), err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return false, status.Errorf(codes.Internal, "%s: expected a JSON array", rpc.Short(call.RPC))
		}
		delivered := false
		for dec.More() {
			item := new(T)
			if err := dec.Decode(item); err != nil {
				return delivered, status.Errorf(codes.Unavailable, "read %s stream: %v", rpc.Short(call.RPC), err)
			}
			delivered = true
			if err := fn(item); err != nil {
				return true, &stopError{err}
			}
		}
		if _, err := dec.Token(); err != nil {
			return delivered, status.Errorf(codes.Unavailable, "read %s stream: %v", rpc.Short(call.RPC), err)
		}
		return delivered, nil
	})
}

// stopError carries a consumer's error out of the retry loop untouched.
type stopError struct{ err error }

func (e *stopError) Error() string { return e.err.Error() }

// run drives the retry loop. decode reports whether any output reached
// the caller; once it has, a failure is final.
func (c *Client) run(ctx context.Context, call Call, decode func(io.Reader) (bool, error)) error {
	short := rpc.Short(call.RPC)
	route, ok := c.routes.Lookup(call.RPC)
	if !ok {
		return status.Errorf(codes.Unimplemented, "no REST binding for %s", call.RPC)
	}
	if err := model.Validate(call.Request); err != nil {
		return status.Errorf(codes.InvalidArgument, "%s: %v", short, err)
	}
	enc, err := encode(route, call.Request)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "%s: %v", short, err)
	}

	var final error
	attempt := 0
	onRetry := retry.OnRetry(func(n int, err error, delay time.Duration) {
		metrics.ObserveRetry(short)
		c.logger.Warn().
			Str("rpc", short).
			Int("attempt", n).
			Str("code", retry.CodeName(status.Code(err))).
			Dur("delay", delay).
			Msg("retrying rpc")
	})

	err = retry.Do(ctx, c.retries.For(call.RPC), func(actx context.Context) error {
		attempt++
		start := time.Now()
		delivered, err := c.attempt(actx, call.RPC, enc, decode)
		code := status.Code(err)
		var stop *stopError
		if errors.As(err, &stop) {
			code = codes.OK
		}
		metrics.ObserveRPC(short, retry.CodeName(code), time.Since(start))
		c.logger.Debug().
			Str("rpc", short).
			Int("attempt", attempt).
			Str("code", retry.CodeName(code)).
			Dur("elapsed", time.Since(start)).
			Msg("rpc attempt")
		if err != nil && delivered {
			final = err
			return nil
		}
		return err
	}, append([]retry.Option{onRetry}, c.retryOpts...)...)
	if err == nil {
		err = final
	}
	var stop *stopError
	if errors.As(err, &stop) {
		return stop.err
	}
	if err != nil && ctx.Err() != nil {
		if _, isAPI := err.(*APIError); !isAPI {
			return ErrorFromTransport(call.RPC, ctx.Err())
		}
	}
	return err
}

func (c *Client) attempt(ctx context.Context, name string, enc *encodedCall, decode func(io.Reader) (bool, error)) (bool, error) {
	url := c.baseURL + enc.path
	if len(enc.query) > 0 {
		url += "?" + enc.query.Encode()
	}

	var body io.Reader
	if enc.body != nil {
		body = bytes.NewReader(enc.body)
	}
	req, err := http.NewRequestWithContext(ctx, enc.method, url, body)
	if err != nil {
		return false, status.Errorf(codes.InvalidArgument, "create request: %v", err)
	}
	if enc.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("x-goog-api-client", c.apiClient)
	if h := enc.routingHeader(); h != "" {
		req.Header.Set("x-goog-request-params", h)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, ErrorFromTransport(name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return false, ErrorFromResponse(name, resp.StatusCode, data)
	}
	delivered, err := decode(resp.Body)
	var stop *stopError
	if errors.As(err, &stop) {
		return delivered, err
	}
	if err != nil && ctx.Err() != nil && status.Code(err) != codes.Internal {
		return delivered, ErrorFromTransport(name, ctx.Err())
	}
	return delivered, err
}
