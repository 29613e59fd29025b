package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusLadder(t *testing.T) {
	req := require.New(t)

	req.True(StatusSending.Advances(StatusSent))
	req.True(StatusSent.Advances(StatusDelivered))
	req.True(StatusDelivered.Advances(StatusSeen))
	req.True(StatusSent.Advances(StatusSeen))

	req.False(StatusSeen.Advances(StatusDelivered))
	req.False(StatusDelivered.Advances(StatusDelivered))
	req.False(StatusSent.Advances(Status("bogus")))
}

func TestStatusMinMax(t *testing.T) {
	req := require.New(t)

	req.Equal(StatusSeen, Max(StatusDelivered, StatusSeen))
	req.Equal(StatusDelivered, Min(StatusDelivered, StatusSeen))
	req.Equal(StatusSent, Min(StatusSeen, StatusSent))
}

func TestStatusIsReceipt(t *testing.T) {
	req := require.New(t)

	req.True(StatusDelivered.IsReceipt())
	req.True(StatusSeen.IsReceipt())
	req.False(StatusSent.IsReceipt())
	req.False(StatusSending.IsReceipt())
}
