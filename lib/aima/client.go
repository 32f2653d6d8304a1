package aima

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"aimawatch-backend/lib/htmlutil"
	"aimawatch-backend/lib/telemetry"
	"aimawatch-backend/lib/timezone"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aima")

const (
	DefaultLoginUrl = "https://services.aima.gov.pt/RAR/login.php"
	DefaultCheckUrl = "https://services.aima.gov.pt/RAR/login_check3.php"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Credentials is held in memory for the duration of a single check and
// must never end up in logs, spans or storage in the clear.
type Credentials struct {
	Email    string
	Password string
}

type Status struct {
	Text      string
	CheckedAt time.Time
}

type Options struct {
	// LoginUrl is the page carrying the hidden `tok` field. Defaults
	// to the production portal.
	LoginUrl string
	// CheckUrl receives the credentials + token form post.
	CheckUrl string
	// UserAgent overrides the default desktop browser string.
	UserAgent string
	// ProxyUrl routes checks through an outbound proxy when set.
	ProxyUrl string
	// InsecureSkipVerify disables TLS verification. The portal's chain
	// is broken often enough that deployments need the escape hatch.
	InsecureSkipVerify bool
	// Timeout bounds every request of a check, 30s when zero.
	Timeout time.Duration
	// Locate overrides the status region strategy.
	Locate Locator
}

// Client performs status checks. It is safe for concurrent use: every
// Check builds its own http session, nothing is shared across calls.
type Client struct {
	loginUrl  *url.URL
	checkUrl  string
	loginBase string
	userAgent string
	proxyUrl  string
	insecure  bool
	timeout   time.Duration
	locate    Locator
}

func NewClient(opts Options) (*Client, error) {
	if opts.LoginUrl == "" {
		opts.LoginUrl = DefaultLoginUrl
	}
	if opts.CheckUrl == "" {
		opts.CheckUrl = DefaultCheckUrl
	}
	loginUrl, err := url.Parse(opts.LoginUrl)
	if err != nil {
		return nil, fmt.Errorf("parse login url: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.Locate == nil {
		opts.Locate = StyleLocator("background-color", "salmon")
	}

	return &Client{
		loginUrl:  loginUrl,
		checkUrl:  opts.CheckUrl,
		loginBase: path.Base(loginUrl.Path),
		userAgent: opts.UserAgent,
		proxyUrl:  opts.ProxyUrl,
		insecure:  opts.InsecureSkipVerify,
		timeout:   opts.Timeout,
		locate:    opts.Locate,
	}, nil
}

// session builds the throwaway resty client backing one check. A fresh
// cookie jar per call keeps one user's session cookies away from the
// next user's.
func (c *Client) session() (*resty.Client, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	// tls and proxy settings must land while the default transport is
	// still in place, the cloudflare wrapper hides it afterwards
	if c.insecure {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if c.proxyUrl != "" {
		client.SetProxy(c.proxyUrl)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", c.userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(c.loginUrl.Hostname()))
	client.SetTimeout(c.timeout)

	telemetry.InstrumentResty(client, "aima/http")
	return client, nil
}

// Check logs in with the given credentials and extracts the current
// application status. A non-nil error is always an *Error; panics
// inside the call are downgraded to ErrUnexpected, a misbehaving page
// can never take the calling sweep down.
func (c *Client) Check(ctx context.Context, creds Credentials) (status Status, err error) {
	ctx, span := tracer.Start(ctx, "Check")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: ErrUnexpected, Detail: fmt.Sprintf("panic: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("error_kind", KindOf(err).String()))
		}
	}()

	session, err := c.session()
	if err != nil {
		return Status{}, &Error{Kind: ErrUnexpected, Detail: err.Error()}
	}

	doc, landedAt, err := c.login(ctx, session, creds)
	if err != nil {
		return Status{}, err
	}

	doc, err = c.followScriptRedirect(ctx, session, doc, landedAt)
	if err != nil {
		return Status{}, err
	}

	region := c.locate(doc)
	if region == nil {
		return Status{}, &Error{
			Kind:   ErrStatusRegionNotFound,
			Detail: "no table cell matched the status style",
		}
	}

	return Status{
		Text:      Normalize(regionPayload(region)),
		CheckedAt: timezone.Now(),
	}, nil
}

func (c *Client) login(ctx context.Context, session *resty.Client, creds Credentials) (*goquery.Document, *url.URL, error) {
	ctx, span := tracer.Start(ctx, "login")
	defer span.End()

	res, err := session.R().
		SetContext(ctx).
		Get(c.loginUrl.String())
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return nil, nil, classify(err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return nil, nil, &Error{Kind: ErrUnexpected, Detail: err.Error()}
	}

	token := doc.Find("input[name=tok]").AttrOr("value", "")
	if token == "" {
		span.SetStatus(codes.Error, "failed to find login token")
		return nil, nil, &Error{
			Kind:   ErrTokenNotFound,
			Detail: "hidden tok field missing from login page",
		}
	}

	res, err = session.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"email":    creds.Email,
			"password": creds.Password,
			"tok":      token,
		}).
		Post(c.checkUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit credentials")
		return nil, nil, classify(err)
	}

	// the portal signals bad credentials by bouncing the browser back
	// to the login page, the status code stays 200 either way
	landedAt := finalURL(res)
	if landedAt != nil && strings.Contains(landedAt.Path, c.loginBase) {
		span.SetStatus(codes.Error, "login rejected")
		return nil, nil, &Error{
			Kind:   ErrLoginFailed,
			Detail: "redirected back to the login page",
		}
	}

	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse status page html")
		return nil, nil, &Error{Kind: ErrUnexpected, Detail: err.Error()}
	}
	return doc, landedAt, nil
}

var scriptRedirectRegex = regexp.MustCompile(`window\.location(?:\.href)?\s*=\s*["']([^"']+)["']`)

// followScriptRedirect handles deployments that bounce a logged-in
// session through an inline window.location assignment instead of an
// http redirect. Pages without one pass through untouched.
func (c *Client) followScriptRedirect(ctx context.Context, session *resty.Client, doc *goquery.Document, base *url.URL) (*goquery.Document, error) {
	target := scriptRedirectTarget(doc)
	if target == "" {
		return doc, nil
	}

	ctx, span := tracer.Start(ctx, "followScriptRedirect")
	defer span.End()

	ref, err := url.Parse(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable script redirect target")
		return doc, nil
	}
	if base == nil {
		base = c.loginUrl
	}
	next := base.ResolveReference(ref)
	span.SetAttributes(attribute.String("target", next.String()))

	res, err := session.R().
		SetContext(ctx).
		Get(next.String())
	if err != nil {
		span.SetStatus(codes.Error, "failed to follow script redirect")
		return nil, classify(err)
	}
	followed, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse redirect target html")
		return nil, &Error{Kind: ErrUnexpected, Detail: err.Error()}
	}
	return followed, nil
}

func scriptRedirectTarget(doc *goquery.Document) string {
	for _, script := range doc.Find("script").Nodes {
		groups := scriptRedirectRegex.FindStringSubmatch(htmlutil.GetText(script))
		if len(groups) < 2 {
			continue
		}
		return groups[1]
	}
	return ""
}

// finalURL is where the response actually landed after redirects.
func finalURL(res *resty.Response) *url.URL {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL
	}
	return nil
}
