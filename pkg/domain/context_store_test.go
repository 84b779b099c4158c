package domain_test

import (
	"testing"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextStore_SetGet(t *testing.T) {
	s := domain.NewContextStore(nil)

	require.NoError(t, s.Set("name", "Ada"))
	require.NoError(t, s.Set("count", 3))

	v, ok := s.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"count", "name"}, s.Keys())

	s.Delete("count")
	assert.Equal(t, 1, s.Len())
}

func TestContextStore_RejectsUnserializable(t *testing.T) {
	s := domain.NewContextStore(nil)

	err := s.Set("ch", make(chan int))
	assert.Error(t, err)
	_, ok := s.Get("ch")
	assert.False(t, ok, "rejected value must not be stored")

	assert.Error(t, s.Set("", "x"))
}

func TestContextStore_CloneIsIndependent(t *testing.T) {
	s := domain.NewContextStore(map[string]any{
		"patient": map[string]any{"name": "Ada", "allergies": []any{"nuts"}},
		"tags":    []any{"a"},
	})

	c := s.Clone()
	patient, _ := c.Get("patient")
	patient.(map[string]any)["name"] = "Grace"
	patient.(map[string]any)["allergies"].([]any)[0] = "none"
	tags, _ := c.Get("tags")
	tags.([]any)[0] = "b"
	require.NoError(t, c.Set("extra", true))

	orig, _ := s.Get("patient")
	assert.Equal(t, "Ada", orig.(map[string]any)["name"])
	assert.Equal(t, "nuts", orig.(map[string]any)["allergies"].([]any)[0])
	origTags, _ := s.Get("tags")
	assert.Equal(t, "a", origTags.([]any)[0])
	_, ok := s.Get("extra")
	assert.False(t, ok)
}

func TestContextStore_SnapshotIsCopy(t *testing.T) {
	s := domain.NewContextStore(map[string]any{"k": "v"})
	snap := s.Snapshot()
	snap["k"] = "changed"

	v, _ := s.Get("k")
	assert.Equal(t, "v", v)
}

func TestContextStore_SetStoresJSONForm(t *testing.T) {
	type visit struct {
		Reason string `json:"reason"`
	}
	s := domain.NewContextStore(nil)

	counts := map[string]int{"a": 1}
	visits := []*visit{{Reason: "cough"}}
	require.NoError(t, s.Set("counts", counts))
	require.NoError(t, s.Set("visits", visits))
	require.NoError(t, s.Set("n", 3))

	counts["a"] = 2
	visits[0].Reason = "fever"

	v, _ := s.Get("counts")
	assert.Equal(t, map[string]any{"a": float64(1)}, v)
	v, _ = s.Get("visits")
	assert.Equal(t, []any{map[string]any{"reason": "cough"}}, v)
	v, _ = s.Get("n")
	assert.Equal(t, float64(3), v)
}

func TestContextStore_GetCopy(t *testing.T) {
	s := domain.NewContextStore(map[string]any{"user": map[string]any{"name": "Ada"}})

	v, ok := s.GetCopy("user")
	require.True(t, ok)
	v.(map[string]any)["name"] = "Grace"

	orig, _ := s.Get("user")
	assert.Equal(t, "Ada", orig.(map[string]any)["name"])
}

func TestLoadContextStore(t *testing.T) {
	s, err := domain.LoadContextStore(map[string]any{"ids": []int{1, 2}})
	require.NoError(t, err)
	v, _ := s.Get("ids")
	assert.Equal(t, []any{float64(1), float64(2)}, v)

	_, err = domain.LoadContextStore(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
