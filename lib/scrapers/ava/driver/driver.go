// Package driver owns one scraping session against the portal: a
// cookie-jar HTTP client plus the currently loaded page. It exposes
// the page-interaction primitives (navigate, bounded waits, form
// submission, fragment extraction) that the portal client sequences
// into domain operations.
package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"avaremind-backend/lib/restyutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/ava/driver")

var (
	ErrWaitTimeout = errors.New("timed out waiting for element")
	ErrNoElement   = errors.New("expected element not found")
	ErrClosed      = errors.New("session is closed")
)

const DefaultTimeout = time.Second * 5
const DefaultTabTimeout = time.Second * 4
const defaultPollInterval = time.Millisecond * 250

var instrumentOutput restyutil.InstrumentOutput

// SetInstrumentOutput enables request/response dumping for every
// session opened afterwards. Meant for verbose dev runs.
func SetInstrumentOutput(output restyutil.InstrumentOutput) {
	instrumentOutput = output
}

type Options struct {
	BaseUrl string
	// zero values fall back to DefaultTimeout / DefaultTabTimeout
	Timeout      time.Duration
	TabTimeout   time.Duration
	PollInterval time.Duration
}

type Session struct {
	http    *resty.Client
	baseUrl *url.URL
	opts    Options

	currentUrl *url.URL
	doc        *goquery.Document
	closed     bool
}

func Open(ctx context.Context, opts Options) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Open")
	defer span.End()

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TabTimeout <= 0 {
		opts.TabTimeout = DefaultTabTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, tracer, instrumentOutput)

	return &Session{
		http:    client,
		baseUrl: baseUrl,
		opts:    opts,
	}, nil
}

// WithSession runs fn inside a freshly opened session and guarantees
// the session is closed on every exit path, errors included.
func WithSession(ctx context.Context, opts Options, fn func(s *Session) error) error {
	s, err := Open(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (s *Session) Timeout() time.Duration    { return s.opts.Timeout }
func (s *Session) TabTimeout() time.Duration { return s.opts.TabTimeout }

func (s *Session) CurrentUrl() string {
	if s.currentUrl == nil {
		return ""
	}
	return s.currentUrl.String()
}

func (s *Session) Document() *goquery.Document {
	return s.doc
}

func (s *Session) resolve(ref string) (*url.URL, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if s.currentUrl != nil {
		return s.currentUrl.ResolveReference(parsed), nil
	}
	return s.baseUrl.ResolveReference(parsed), nil
}

func (s *Session) load(ctx context.Context, res *resty.Response) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.String()))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	s.doc = doc
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		s.currentUrl = res.RawResponse.Request.URL
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, ref string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("url", ref))

	if s.closed {
		return ErrClosed
	}
	target, err := s.resolve(ref)
	if err != nil {
		return err
	}

	res, err := s.http.R().SetContext(ctx).Get(target.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return err
	}
	return s.load(ctx, res)
}

// WaitFor polls the current page until the selector matches or the
// bounded wait lapses. A timeout <= 0 uses the session default. The
// expired wait comes back as ErrWaitTimeout; callers that use absence
// as a signal (the activity-tab probe) match on it explicitly.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) (*goquery.Selection, error) {
	ctx, span := tracer.Start(ctx, "WaitFor")
	defer span.End()
	span.SetAttributes(attribute.String("selector", selector))

	if s.closed {
		return nil, ErrClosed
	}
	if timeout <= 0 {
		timeout = s.opts.Timeout
	}
	deadline := time.Now().Add(timeout)

	for {
		if s.doc != nil {
			sel := s.doc.Find(selector)
			if len(sel.Nodes) > 0 {
				return sel, nil
			}
		}
		if time.Now().After(deadline) {
			span.SetStatus(codes.Error, "wait timed out")
			return nil, fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}

		if s.currentUrl == nil {
			continue
		}
		res, err := s.http.R().SetContext(ctx).Get(s.currentUrl.String())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to re-fetch page")
			return nil, err
		}
		if err := s.load(ctx, res); err != nil {
			return nil, err
		}
	}
}

type submitConfig struct {
	action string
}

type SubmitOption func(*submitConfig)

// WithAction overrides the form's action attribute, the way the
// portal's own scripts retarget frm-principal before posting it.
func WithAction(action string) SubmitOption {
	return func(c *submitConfig) {
		c.action = action
	}
}

// FillAndSubmit merges the given values over the form's own fields
// and posts it exactly once. The portal gives no idempotency promise
// on form posts, so there is deliberately no retry here.
func (s *Session) FillAndSubmit(ctx context.Context, formSelector string, fields map[string]string, opts ...SubmitOption) error {
	ctx, span := tracer.Start(ctx, "FillAndSubmit")
	defer span.End()
	span.SetAttributes(attribute.String("form", formSelector))

	if s.closed {
		return ErrClosed
	}
	if s.doc == nil {
		return fmt.Errorf("%w: no page loaded", ErrNoElement)
	}

	form := s.doc.Find(formSelector).First()
	if len(form.Nodes) == 0 {
		span.SetStatus(codes.Error, "form not found")
		return fmt.Errorf("%w: %s", ErrNoElement, formSelector)
	}

	var cfg submitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	values := map[string]string{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		values[name] = input.AttrOr("value", "")
	})
	for k, v := range fields {
		values[k] = v
	}

	action := cfg.action
	if action == "" {
		action = form.AttrOr("action", "")
	}
	target, err := s.resolve(action)
	if err != nil {
		return err
	}

	method := strings.ToUpper(form.AttrOr("method", "post"))

	var res *resty.Response
	if method == "GET" {
		res, err = s.http.R().
			SetContext(ctx).
			SetQueryParams(values).
			Get(target.String())
	} else {
		res, err = s.http.R().
			SetContext(ctx).
			SetFormData(values).
			Post(target.String())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit form")
		return err
	}
	return s.load(ctx, res)
}

// ExtractHtml returns the inner html of the first element matching
// the selector on the current page.
func (s *Session) ExtractHtml(selector string) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	if s.doc == nil {
		return "", fmt.Errorf("%w: no page loaded", ErrNoElement)
	}
	sel := s.doc.Find(selector).First()
	if len(sel.Nodes) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return sel.Html()
}

// Close releases the underlying HTTP resources. Safe to call more
// than once and required on every exit path so sessions never leak
// past their pool slot.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.doc = nil
	s.http.GetClient().CloseIdleConnections()
}
