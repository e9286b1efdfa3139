package browser

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
)

// Portal selectors and storage keys. The portal's login markup is stable on
// these attributes; anything beyond them is out of scope.
const (
	selAccountField = `input[name="ctl-account"]`
	selSecretField  = `input[name="ctl-password"]`
	selSubmitButton = `button[type="submit"]`
	selOTPWidget    = `div[data-role="otp-challenge"]`
	selOTPDigit     = `div[data-role="otp-challenge"] input[data-otp-digit]`
	selLoginError   = `.login-feedback-error`

	tokenStorageKey  = "portal.session.token"
	expiryStorageKey = "portal.session.expiry"
)

// maxPortalErrorLen caps how much portal-reported error text crosses the
// boundary; everything else about the page stays inside this package.
const maxPortalErrorLen = 200

// FlowConfig bounds every external wait in the login flow. There is no
// unbounded wait anywhere: each field is a hard deadline for one step.
type FlowConfig struct {
	PortalURL string

	NavTimeout     time.Duration // entry page load
	ElementTimeout time.Duration // login form appearance
	MFAWait        time.Duration // one-time-code widget appearance window
	AuthWait       time.Duration // overall wait for the storage artifact
	PollInterval   time.Duration // storage poll backoff

	// DefaultTokenTTL applies when the portal omits an expiry and the token
	// itself carries none.
	DefaultTokenTTL time.Duration
}

// DefaultFlowConfig returns operational defaults; the MFA window and default
// TTL are tuning knobs, not part of the contract, and are overridable via
// configuration.
func DefaultFlowConfig(portalURL string) FlowConfig {
	return FlowConfig{
		PortalURL:       portalURL,
		NavTimeout:      30 * time.Second,
		ElementTimeout:  15 * time.Second,
		MFAWait:         8 * time.Second,
		AuthWait:        45 * time.Second,
		PollInterval:    500 * time.Millisecond,
		DefaultTokenTTL: 12 * time.Hour,
	}
}

type flowState int

const (
	stateNotStarted flowState = iota
	stateNavigatedToLogin
	stateCredentialsSubmitted
	stateMfaSubmitted
	stateTokenExtracted
)

// flow drives one login attempt on one page. Purely synchronous: it blocks
// the calling goroutine for the whole attempt and never spawns goroutines.
type flow struct {
	page  *rod.Page
	cfg   FlowConfig
	creds domain.Credentials
	state flowState
}

// RunLogin drives the full login/MFA/extraction sequence against a
// provisioned browser and returns the extracted token. Any terminal failure
// leaves cleanup to the session owner; this function only ever touches the
// page.
func RunLogin(ctx context.Context, b *rod.Browser, creds domain.Credentials, cfg FlowConfig) (domain.AcquiredToken, error) {
	f := &flow{cfg: cfg, creds: creds, state: stateNotStarted}

	if err := f.navigate(b); err != nil {
		return domain.AcquiredToken{}, err
	}
	if err := f.submitCredentials(); err != nil {
		return domain.AcquiredToken{}, err
	}
	return f.awaitToken(ctx)
}

func (f *flow) navigate(b *rod.Browser) error {
	page, err := b.Page(proto.TargetCreateTarget{URL: f.cfg.PortalURL})
	if err != nil {
		return domain.WrapError(domain.KindNavigation, "failed to open portal page", err)
	}
	f.page = page

	if err := page.Timeout(f.cfg.NavTimeout).WaitLoad(); err != nil {
		return domain.WrapError(domain.KindNavigation, "portal entry page did not load in time", err)
	}

	f.state = stateNavigatedToLogin
	return nil
}

func (f *flow) submitCredentials() error {
	deadline := f.page.Timeout(f.cfg.ElementTimeout)

	accountField, err := deadline.Element(selAccountField)
	if err != nil {
		return domain.WrapError(domain.KindNavigation, "login form did not appear", err)
	}
	if err := accountField.Input(f.creds.AccountID); err != nil {
		return domain.WrapError(domain.KindNavigation, "failed to fill account field", err)
	}

	secretField, err := deadline.Element(selSecretField)
	if err != nil {
		return domain.WrapError(domain.KindNavigation, "login form did not appear", err)
	}
	if err := secretField.Input(f.creds.Secret); err != nil {
		return domain.WrapError(domain.KindNavigation, "failed to fill secret field", err)
	}

	submit, err := deadline.Element(selSubmitButton)
	if err != nil {
		return domain.WrapError(domain.KindNavigation, "submit control did not appear", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return domain.WrapError(domain.KindNavigation, "failed to submit login form", err)
	}

	f.state = stateCredentialsSubmitted
	return nil
}

// awaitToken polls client-side storage for the authentication artifact,
// answering the one-time-code challenge if it appears along the way. Both
// the MFA window and the overall wait are bounded.
func (f *flow) awaitToken(ctx context.Context) (domain.AcquiredToken, error) {
	start := time.Now()
	authDeadline := start.Add(f.cfg.AuthWait)
	mfaDeadline := start.Add(f.cfg.MFAWait)

	for {
		if token, ok := f.readStorage(tokenStorageKey); ok && token != "" {
			return f.extractToken(token)
		}

		if f.state == stateCredentialsSubmitted && time.Now().Before(mfaDeadline) {
			handled, err := f.maybeAnswerChallenge()
			if err != nil {
				return domain.AcquiredToken{}, err
			}
			if handled {
				f.state = stateMfaSubmitted
			}
		}

		if time.Now().After(authDeadline) {
			return domain.AcquiredToken{}, f.loginFailed()
		}

		select {
		case <-ctx.Done():
			return domain.AcquiredToken{}, domain.WrapError(domain.KindTimeout,
				"acquisition cancelled while waiting for authentication", ctx.Err())
		case <-time.After(f.cfg.PollInterval):
		}
	}
}

// maybeAnswerChallenge fills the one-time-code widget if it is present.
// A visible widget with no code available is the caller's problem: they must
// resubmit with a code rather than have this worker wait indefinitely.
func (f *flow) maybeAnswerChallenge() (bool, error) {
	present, _, err := f.page.Has(selOTPWidget)
	if err != nil || !present {
		return false, nil
	}

	if !f.creds.HasOTP() {
		return false, domain.NewError(domain.KindMFARequired,
			"portal requires a one-time code; resubmit with one")
	}

	code, err := f.resolveOTPCode(time.Now())
	if err != nil {
		return false, err
	}

	digits, err := f.page.Elements(selOTPDigit)
	if err != nil {
		return false, domain.WrapError(domain.KindNavigation, "failed to locate code inputs", err)
	}

	switch {
	case len(digits) >= len(code):
		// One input per digit, filled in order.
		for i, r := range code {
			if err := digits[i].Input(string(r)); err != nil {
				return false, domain.WrapError(domain.KindNavigation, "failed to fill code input", err)
			}
		}
	case len(digits) == 1:
		if err := digits[0].Input(code); err != nil {
			return false, domain.WrapError(domain.KindNavigation, "failed to fill code input", err)
		}
	default:
		return false, domain.NewError(domain.KindNavigation, "unexpected one-time-code widget layout")
	}

	return true, nil
}

func (f *flow) resolveOTPCode(now time.Time) (string, error) {
	if f.creds.OTPCode != "" {
		return f.creds.OTPCode, nil
	}

	code, err := totp.GenerateCode(f.creds.OTPSecret, now)
	if err != nil {
		return "", domain.WrapError(domain.KindValidation, "supplied OTP secret is not a valid TOTP secret", err)
	}
	return code, nil
}

func (f *flow) extractToken(token string) (domain.AcquiredToken, error) {
	now := time.Now().UTC()

	rawExpiry, _ := f.readStorage(expiryStorageKey)
	expiresAt := resolveExpiry(rawExpiry, token, now, f.cfg.DefaultTokenTTL)

	f.state = stateTokenExtracted
	return domain.AcquiredToken{
		AccountID: f.creds.AccountID,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// loginFailed builds the terminal error for an authentication wait that ran
// out, attaching the portal's own error text when the page shows one. Only
// that snippet crosses the boundary, never page content at large.
func (f *flow) loginFailed() error {
	message := "portal did not authenticate the supplied credentials"
	if text := f.portalErrorText(); text != "" {
		message = "portal rejected login: " + text
	}
	return domain.NewError(domain.KindLoginFailed, message)
}

func (f *flow) portalErrorText() string {
	present, el, err := f.page.Has(selLoginError)
	if err != nil || !present {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	text = strings.TrimSpace(text)
	if len(text) > maxPortalErrorLen {
		text = text[:maxPortalErrorLen]
	}
	return text
}

// readStorage reads one localStorage key. A missing key is not an error.
func (f *flow) readStorage(key string) (string, bool) {
	res, err := f.page.Evaluate(&rod.EvalOptions{
		JS:      `key => localStorage.getItem(key)`,
		JSArgs:  []interface{}{key},
		ByValue: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return "", false
	}
	return res.Value.Str(), true
}

// resolveExpiry determines the token's expiry with decreasing trust:
// the portal's own expiry value, the token's JWT exp claim, then the
// configured default TTL.
func resolveExpiry(raw, token string, now time.Time, defaultTTL time.Duration) time.Time {
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			// Heuristic: values this large are epoch milliseconds.
			if n > 1e12 {
				return time.UnixMilli(n).UTC()
			}
			return time.Unix(n, 0).UTC()
		}
	}

	if exp, ok := jwtExpiry(token); ok {
		return exp
	}

	return now.Add(defaultTTL)
}

// jwtExpiry pulls the exp claim out of a JWT-shaped token without verifying
// the signature; the value only informs storage expiry, not trust.
func jwtExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}
