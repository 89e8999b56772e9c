// Package auth implements phone login with SMS one-time codes and issues the
// bearer tokens checked by the HTTP middleware.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tasvir/internal/domain"
	"tasvir/internal/infra"
	"tasvir/internal/providers/sms"
	"tasvir/internal/textnorm"
)

var (
	ErrThrottled       = errors.New("auth: code requested too recently")
	ErrCodeInvalid     = fmt.Errorf("%w: code invalid or expired", domain.ErrUnauthorized)
	ErrTooManyAttempts = fmt.Errorf("%w: too many attempts", domain.ErrUnauthorized)
)

const (
	codeTTL      = 2 * time.Minute
	resendAfter  = 60 * time.Second
	maxAttempts  = 5
	codeDigits   = 6
	fieldHash    = "hash"
	fieldAttempt = "attempts"
)

// UserUpserter finds or creates the account for a phone number.
type UserUpserter interface {
	UpsertByPhone(ctx context.Context, phone string, now time.Time) (*domain.User, error)
}

// OTPOptions configures an OTP service.
type OTPOptions struct {
	Redis  *redis.Client
	Sender sms.Sender
	Users  UserUpserter
	Tokens *Tokens
	Logger *infra.Logger
	// Code overrides code generation in tests.
	Code func() (string, error)
}

// OTP issues and verifies SMS login codes stored in Redis.
type OTP struct {
	redis  *redis.Client
	sender sms.Sender
	users  UserUpserter
	tokens *Tokens
	logger *infra.Logger
	code   func() (string, error)
	now    func() time.Time
}

// Session is returned after a successful verification.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"-"`
}

func NewOTP(opts OTPOptions) (*OTP, error) {
	if opts.Redis == nil || opts.Sender == nil || opts.Users == nil || opts.Tokens == nil {
		return nil, errors.New("auth: redis, sender, users and tokens are required")
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	code := opts.Code
	if code == nil {
		code = randomCode
	}
	return &OTP{
		redis:  opts.Redis,
		sender: opts.Sender,
		users:  opts.Users,
		tokens: opts.Tokens,
		logger: logger,
		code:   code,
		now:    time.Now,
	}, nil
}

// RequestCode sends a fresh code to phone. Returns the normalized phone.
func (o *OTP) RequestCode(ctx context.Context, rawPhone string) (string, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return "", err
	}
	ok, err := o.redis.SetNX(ctx, throttleKey(phone), "1", resendAfter).Result()
	if err != nil {
		return "", fmt.Errorf("auth: throttle %s: %w", phone, err)
	}
	if !ok {
		return "", ErrThrottled
	}

	code, err := o.code()
	if err != nil {
		return "", fmt.Errorf("auth: generate code: %w", err)
	}
	key := codeKey(phone)
	pipe := o.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fieldHash, hashCode(phone, code), fieldAttempt, 0)
	pipe.Expire(ctx, key, codeTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("auth: store code: %w", err)
	}

	if err := o.sender.SendCode(ctx, phone, code); err != nil {
		// Allow an immediate retry when delivery failed.
		o.redis.Del(ctx, throttleKey(phone), key)
		return "", fmt.Errorf("auth: deliver code: %w", err)
	}
	return phone, nil
}

// VerifyCode checks code for phone. On success the code is consumed, the user
// is created if needed and a token is issued.
func (o *OTP) VerifyCode(ctx context.Context, rawPhone, code string) (*Session, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	key := codeKey(phone)
	stored, err := o.redis.HGet(ctx, key, fieldHash).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCodeInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load code: %w", err)
	}

	attempts, err := o.redis.HIncrBy(ctx, key, fieldAttempt, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("auth: count attempt: %w", err)
	}
	if attempts > maxAttempts {
		o.redis.Del(ctx, key)
		return nil, ErrTooManyAttempts
	}

	given := hashCode(phone, textnorm.Digits(code))
	if subtle.ConstantTimeCompare([]byte(given), []byte(stored)) != 1 {
		o.logger.Debug().Str("phone", phone).Int64("attempts", attempts).Msg("auth: code mismatch")
		return nil, ErrCodeInvalid
	}
	// Del reports how many keys went away; zero means a concurrent verify
	// already consumed the code.
	n, err := o.redis.Del(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("auth: consume code: %w", err)
	}
	if n == 0 {
		return nil, ErrCodeInvalid
	}

	user, err := o.users.UpsertByPhone(ctx, phone, o.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("auth: upsert user: %w", err)
	}
	token, exp, err := o.tokens.Issue(*user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

func codeKey(phone string) string     { return "otp:code:" + phone }
func throttleKey(phone string) string { return "otp:throttle:" + phone }

func hashCode(phone, code string) string {
	sum := sha256.Sum256([]byte(phone + ":" + code))
	return hex.EncodeToString(sum[:])
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	s := strconv.FormatInt(n.Int64(), 10)
	for len(s) < codeDigits {
		s = "0" + s
	}
	return s, nil
}
