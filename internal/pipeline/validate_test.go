package pipeline

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/config"
)

type testCategory struct {
	CategoryID     int64  `mapstructure:"categoryID" fsd:"required"`
	CategoryNameID int64  `mapstructure:"categoryNameID" fsd:"required"`
	IconID         *int64 `mapstructure:"iconID"`
	Published      bool   `mapstructure:"published"`
}

func TestValidateAcceptsBoolIntAndOptional(t *testing.T) {
	raw := map[string]any{
		"categoryID":     json.Number("6"),
		"categoryNameID": json.Number("63539"),
		"published":      json.Number("1"),
	}
	var c testCategory
	require.NoError(t, Validate(raw, &c))
	assert.Equal(t, int64(6), c.CategoryID)
	assert.True(t, c.Published)
	assert.Nil(t, c.IconID)

	raw["iconID"] = json.Number("22")
	require.NoError(t, Validate(raw, &c))
	require.NotNil(t, c.IconID)
	assert.Equal(t, int64(22), *c.IconID)
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	var c testCategory
	err := Validate(map[string]any{"categoryID": json.Number("6")}, &c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "categoryNameID")
}

func TestValidateRejectsBadBoolInt(t *testing.T) {
	var c testCategory
	err := Validate(map[string]any{
		"categoryID":     json.Number("6"),
		"categoryNameID": json.Number("1"),
		"published":      json.Number("2"),
	}, &c)
	assert.Error(t, err)
}

func sampleRecords() map[string]any {
	return map[string]any{
		"10": map[string]any{"categoryID": json.Number("10"), "categoryNameID": json.Number("1")},
		"2":  map[string]any{"categoryID": json.Number("2"), "categoryNameID": json.Number("1")},
		"7":  map[string]any{"categoryID": json.Number("7")},
	}
}

func TestCollectSkipPolicy(t *testing.T) {
	env, logs := newTestEnv(t, config.PolicySkip)

	out, err := Collect[testCategory](env, "categories", sampleRecords())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "2", out[0].Key)
	assert.Equal(t, "10", out[1].Key)
	assert.Contains(t, logs.String(), "invalid_record")
}

func TestCollectFatalPolicy(t *testing.T) {
	env, _ := newTestEnv(t, config.PolicyFatal)

	_, err := Collect[testCategory](env, "categories", sampleRecords())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "categories", verr.Domain)
	assert.Equal(t, "7", verr.Key)
}

func TestCompareKeys(t *testing.T) {
	assert.Negative(t, compareKeys("2", "10"))
	assert.Positive(t, compareKeys("b", "10"))
	assert.Negative(t, compareKeys("a", "b"))
	assert.Zero(t, compareKeys("5", "5"))
}

func TestKeyedID(t *testing.T) {
	id, err := Keyed[int]{Key: "10000002"}.ID()
	require.NoError(t, err)
	assert.Equal(t, int64(10000002), id)

	_, err = Keyed[int]{Key: "abc"}.ID()
	assert.Error(t, err)
}

func TestRejectFollowsPolicy(t *testing.T) {
	env, logs := newTestEnv(t, config.PolicySkip)
	assert.NoError(t, env.Reject("skins", "7", errors.New("bad")))
	assert.Contains(t, logs.String(), "invalid_record")

	env, _ = newTestEnv(t, config.PolicyFatal)
	err := env.Reject("skins", "7", errors.New("bad"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "skins", verr.Domain)
}
