package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/neotype/internal/generator"
	"github.com/verte-zerg/neotype/internal/model"
)

func TestLocalFetchText(t *testing.T) {
	gw := NewLocal(generator.NewSeeded(1), "")
	sample, err := gw.FetchText(context.Background(), 15, model.Easy)
	require.NoError(t, err)
	assert.Equal(t, 30, sample.WordCount)
	assert.Len(t, strings.Fields(sample.Text), 30)
}

func TestLocalBackendCallsUnavailable(t *testing.T) {
	gw := NewLocal(nil, "")
	ctx := context.Background()

	_, err := gw.Arm(ctx, 30, "text")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, gw.ReportProgress(ctx, "", Progress{}), ErrUnavailable)
	_, err = gw.Finalize(ctx, FinalizeRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, gw.UploadBatch(ctx, nil), ErrUnavailable)
	_, err = gw.Leaderboard(ctx, 30)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLocalFetchTextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal(nil, "").FetchText(ctx, 30, model.Easy)
	var fetchErr *TextFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateSample(t *testing.T) {
	cases := []model.TextSample{
		{Text: "  ", WordCount: 1, CharacterCount: 2},
		{Text: "cat", WordCount: 0, CharacterCount: 3},
		{Text: "cat", WordCount: 1, CharacterCount: -1},
	}
	for _, c := range cases {
		var fetchErr *TextFetchError
		assert.ErrorAs(t, ValidateSample(c), &fetchErr, "sample %+v", c)
	}
	assert.NoError(t, ValidateSample(model.TextSample{Text: "cat", WordCount: 1, CharacterCount: 3}))
}
