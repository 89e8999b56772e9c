// Package credentials keeps provider API keys in Postgres so they can be
// rotated with tasvirctl instead of a redeploy.
package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tasvir/internal/infra"
	"tasvir/internal/sqlinline"
)

const (
	ProviderKie = "kie"
	ProviderSMS = "sms"
)

// Providers lists the integrations whose keys may be stored.
var Providers = []string{ProviderKie, ProviderSMS}

// Credential describes a stored key without revealing it.
type Credential struct {
	Provider    string    `json:"provider"`
	Fingerprint string    `json:"fingerprint"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) KieAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderKie)
}

func (s *Store) SMSAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderSMS)
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	var token string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("load %s credentials: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers an explicitly configured value and falls back to the
// stored key.
func (s *Store) Resolve(ctx context.Context, provider, configured string) (string, error) {
	if v := strings.TrimSpace(configured); v != "" {
		return v, nil
	}
	return s.Token(ctx, provider)
}

// SetToken stores the key for one of the known providers along with its
// fingerprint.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	raw, err := json.Marshal(map[string]string{"fingerprint": Fingerprint(token)})
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("store %s credentials: %w", provider, err)
	}
	return nil
}

// List returns every stored credential ordered by provider.
func (s *Store) List(ctx context.Context) ([]Credential, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListIntegrationTokens)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()
	var out []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.Provider, &c.Fingerprint, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes the stored key for provider and reports whether one existed.
func (s *Store) Delete(ctx context.Context, provider string) (bool, error) {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return false, err
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider)
	if err != nil {
		return false, fmt.Errorf("delete %s credentials: %w", provider, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Fingerprint identifies a key in listings and logs.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:6])
}

func normalizeProvider(provider string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	for _, p := range Providers {
		if p == provider {
			return provider, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", provider)
}
