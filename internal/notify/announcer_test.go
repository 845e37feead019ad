package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitewright/sitewright/internal/foundation/errors"
)

func TestNewAnnouncerRequiresURL(t *testing.T) {
	_, err := NewAnnouncer("", "sitewright.builds")
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryNotify))
}

func TestNewAnnouncerUnreachableBroker(t *testing.T) {
	// Port 1 is never a NATS server; connect must fail fast, classified as a
	// notify error so callers treat it as a side-channel problem.
	_, err := NewAnnouncer("nats://127.0.0.1:1", "sitewright.builds")
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryNotify))
}
