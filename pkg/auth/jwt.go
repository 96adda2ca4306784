package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// Secret is a string that redacts itself in String(), GoString() and
// MarshalText(). Use [Secret.Value] only where the raw key is needed.
type Secret string

const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret string.
func (s Secret) Value() string { return string(s) }

// MarshalText implements [encoding.TextMarshaler] with the redacted form.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

const (
	// MinKeyLength is the minimum HS256 signing key length in bytes.
	MinKeyLength = 32

	// maxTokenSize is the largest token string accepted (8 KB).
	maxTokenSize = 8192

	// DefaultIssuer is the issuer stamped into and required on tokens.
	DefaultIssuer = "contentflow"

	// DefaultLeeway tolerates small clock skew on exp/nbf.
	DefaultLeeway = 30 * time.Second

	tracerName = "github.com/StricklySoft/contentflow/pkg/auth"
)

// Claims is the JWT payload for admin tokens.
type Claims struct {
	Roles []Role `json:"roles"`
	jwt.RegisteredClaims
}

// ValidatorConfig configures an [HMACValidator].
type ValidatorConfig struct {
	// SigningKey is the shared HS256 secret. At least [MinKeyLength] bytes.
	SigningKey Secret

	// Issuer is required on every token. Empty means [DefaultIssuer].
	Issuer string

	// Audience, when set, must appear in the token's aud claim.
	Audience string

	// Leeway is the tolerated clock skew. Zero means [DefaultLeeway].
	Leeway time.Duration
}

// Validate checks the configuration.
func (c ValidatorConfig) Validate() error {
	if c.SigningKey.Value() == "" {
		return sserr.New(sserr.CodeValidationRequired, "auth: signing key is required")
	}
	if len(c.SigningKey.Value()) < MinKeyLength {
		return sserr.Newf(sserr.CodeValidation,
			"auth: signing key must be at least %d bytes", MinKeyLength)
	}
	if c.Leeway < 0 {
		return sserr.New(sserr.CodeValidationRange, "auth: leeway must not be negative")
	}
	return nil
}

// HMACValidator validates and issues HS256 admin tokens.
type HMACValidator struct {
	key      []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
	tracer   trace.Tracer
}

var _ TokenValidator = (*HMACValidator)(nil)

// ValidatorOption configures an [HMACValidator].
type ValidatorOption func(*HMACValidator)

// WithClock overrides the time source used for exp/nbf checks and for
// issuing tokens.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *HMACValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewHMACValidator builds a validator from cfg.
func NewHMACValidator(cfg ValidatorConfig, opts ...ValidatorOption) (*HMACValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := &HMACValidator{
		key:      []byte(cfg.SigningKey.Value()),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
	if v.issuer == "" {
		v.issuer = DefaultIssuer
	}
	if v.leeway == 0 {
		v.leeway = DefaultLeeway
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate verifies the token signature, issuer, audience and expiry, and
// returns the identity it carries. Tokens without an exp claim, without a
// subject, or without any recognized role are rejected.
func (v *HMACValidator) Validate(ctx context.Context, tokenStr string) (_ *Identity, err error) {
	_, span := startSpan(ctx, v.tracer, "auth.Validate")
	defer func() {
		finishSpan(span, err)
		span.End()
	}()

	if tokenStr == "" {
		return nil, sserr.New(sserr.CodeAuthentication, "auth: token is empty")
	}
	if len(tokenStr) > maxTokenSize {
		return nil, sserr.Newf(sserr.CodeAuthenticationInvalid,
			"auth: token exceeds maximum size of %d bytes", maxTokenSize)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	_, err = jwt.NewParser(opts...).ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if claims.Subject == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token has no subject")
	}

	identity := &Identity{Subject: claims.Subject}
	for _, r := range claims.Roles {
		if r.Valid() {
			identity.Roles = append(identity.Roles, r)
		}
	}
	if len(identity.Roles) == 0 {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token carries no recognized role")
	}

	span.SetAttributes(attribute.String("auth.subject", identity.Subject))
	return identity, nil
}

// Issue signs a token for subject with the given roles, valid for ttl.
// The CLI uses it to mint operator tokens from the shared secret.
func (v *HMACValidator) Issue(subject string, roles []Role, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", sserr.New(sserr.CodeValidationRequired, "auth: subject is required")
	}
	if ttl <= 0 {
		return "", sserr.New(sserr.CodeValidationRange, "auth: ttl must be positive")
	}
	for _, r := range roles {
		if !r.Valid() {
			return "", sserr.Newf(sserr.CodeValidation, "auth: unknown role %q", r)
		}
	}

	now := v.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", sserr.Wrap(err, sserr.CodeInternal, "auth: failed to sign token")
	}
	return signed, nil
}

// classifyError maps jwt library errors onto platform error codes.
func classifyError(err error) *sserr.Error {
	if err == nil {
		return nil
	}

	var ssError *sserr.Error
	if errors.As(err, &ssError) {
		return ssError
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "auth: token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is unverifiable")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is not yet valid")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token audience is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token issuer is invalid")
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is missing a required claim")
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token claims are invalid")
	}
	return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token validation failed")
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
