package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasvir/internal/domain"
)

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseExpiry("", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseExpiry("48h", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, now.Add(48*time.Hour), *got)

	got, err = parseExpiry("2026-05-01T00:00:00+03:30", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 4, 30, 20, 30, 0, 0, time.UTC), *got)

	_, err = parseExpiry("-1h", now)
	require.Error(t, err)
	_, err = parseExpiry("tomorrow", now)
	require.Error(t, err)
}

func TestDiscountFlags(t *testing.T) {
	d, err := discountFlags{code: "nowruz", kind: " Fixed ", value: 50_000, capacity: 10}.toDiscount(time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.DiscountTypeFixed, d.DiscountType)
	assert.True(t, d.IsActive)
	assert.Nil(t, d.ExpiresAt)

	d, err = discountFlags{code: "x", kind: "percentage", value: 10, capacity: 1, inactive: true}.toDiscount(time.Now())
	require.NoError(t, err)
	assert.False(t, d.IsActive)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"migrate"}, {"plan", "set"}, {"plan", "list"}, {"discount", "create"}, {"discount", "preview"},
		{"purchase"}, {"replay"}, {"credits", "reset"}, {"sweep"}, {"credentials", "set"},
		{"credentials", "list"}, {"credentials", "unset"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestPlanListPrintsCatalog(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"plan", "list"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"business"`)
}

func TestReplayRequiresTaskID(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"replay"})
	require.Error(t, root.Execute())
}
