package identify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentify_SetOperations(t *testing.T) {
	id := New().
		Set("plan", "pro").
		Add("logins", 1).
		Unset("legacy_flag")

	ops := id.Operations()
	assert.Equal(t, map[string]interface{}{"plan": "pro"}, ops["$set"])
	assert.Equal(t, map[string]interface{}{"logins": int64(1)}, ops["$add"])
	assert.Equal(t, map[string]interface{}{"legacy_flag": UnsetSentinel}, ops["$unset"])
}

func TestIdentify_FirstClaimWins(t *testing.T) {
	id := New().
		Set("plan", "pro").
		Set("plan", "free").
		Unset("plan")

	ops := id.Operations()
	assert.Equal(t, map[string]interface{}{"plan": "pro"}, ops["$set"])
	assert.NotContains(t, ops, "$unset")
}

func TestIdentify_ClaimSpansOperations(t *testing.T) {
	id := New().
		SetOnce("signup_date", "2026-01-01").
		Set("signup_date", "2026-02-01")

	ops := id.Operations()
	assert.Equal(t, map[string]interface{}{"signup_date": "2026-01-01"}, ops["$setOnce"])
	assert.NotContains(t, ops, "$set")
}

func TestIdentify_EmptyPropertyNameIgnored(t *testing.T) {
	id := New().Set("", "value")
	assert.True(t, id.IsEmpty())
}

func TestIdentify_ClearAllIsExclusive(t *testing.T) {
	id := New().
		Set("plan", "pro").
		ClearAll()

	assert.Equal(t, map[string]interface{}{"$clearAll": UnsetSentinel}, id.Operations())
}

func TestIdentify_ClearAllMakesInstanceImmutable(t *testing.T) {
	id := New().ClearAll().Set("plan", "pro").Add("logins", 1)

	assert.False(t, id.IsEmpty())
	assert.Equal(t, map[string]interface{}{"$clearAll": UnsetSentinel}, id.Operations())
}

func TestIdentify_IsEmpty(t *testing.T) {
	assert.True(t, New().IsEmpty())
	assert.False(t, New().Set("a", 1).IsEmpty())
	assert.False(t, New().ClearAll().IsEmpty())
}

func TestIdentify_ValuesNormalized(t *testing.T) {
	id := New().
		Set("count", 3).
		Append("tags", []string{"a", "b"})

	ops := id.Operations()
	assert.Equal(t, map[string]interface{}{"count": int64(3)}, ops["$set"])
	assert.Equal(t, map[string]interface{}{"tags": []interface{}{"a", "b"}}, ops["$append"])
}

func TestIdentify_OperationsReturnsCopy(t *testing.T) {
	id := New().Set("plan", "pro")

	ops := id.Operations()
	ops["$set"].(map[string]interface{})["plan"] = "mutated"

	assert.Equal(t, map[string]interface{}{"plan": "pro"}, id.Operations()["$set"])
}
