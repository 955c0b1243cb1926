package merge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

func TestDeep_RecursesIntoObjects(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1, "y": 2}}
	patch := map[string]any{"a": map[string]any{"x": 9}}

	got := Deep(base, patch)

	assert.Equal(t, map[string]any{"a": map[string]any{"x": 9, "y": 2}}, got)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, base["a"], "base must not be modified")
}

func TestDeep_OverrideWins(t *testing.T) {
	cases := []struct {
		name  string
		base  any
		patch any
	}{
		{name: "scalar", base: 1, patch: 7},
		{name: "array replaces, never concatenates", base: []any{"a", "b", "c"}, patch: []any{"z"}},
		{name: "object over scalar", base: "s", patch: map[string]any{"k": 1}},
		{name: "scalar over object", base: map[string]any{"k": 1}, patch: "s"},
		{name: "array over object", base: map[string]any{"k": 1}, patch: []any{1}},
		{name: "null", base: map[string]any{"k": 1}, patch: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Deep(map[string]any{"f": tc.base}, map[string]any{"f": tc.patch})
			assert.Equal(t, tc.patch, got["f"])
		})
	}
}

func TestDeep_KeepsKeysMissingFromPatch(t *testing.T) {
	got := Deep(map[string]any{"old": 1, "new": 2}, map[string]any{"old": 3})
	assert.Equal(t, map[string]any{"old": 3, "new": 2}, got)
}

func TestReconcile_EmptySnapshotIsDefault(t *testing.T) {
	got, dropped, err := Reconcile(overlay.Default(), []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Equal(t, overlay.Default(), got)
}

func TestReconcile_OldSnapshotGainsNewFields(t *testing.T) {
	// Written before registry, bracket, pRoles and visibility existed.
	old := `{
		"blue": {"name": "MANSABA A", "picks": ["Zed","","","",""], "pNames": ["A","B","C","D","E"], "bans": ["","","","",""]},
		"game": {"phase": "PICKING", "timer": 12, "turn": "red", "isIntroActive": false, "isGameControlEnabled": true},
		"ads": ["ONLY AD"]
	}`

	got, dropped, err := Reconcile(overlay.Default(), []byte(old))
	require.NoError(t, err)
	assert.Empty(t, dropped)

	def := overlay.Default()
	assert.Equal(t, "MANSABA A", got.Blue.Name)
	assert.Equal(t, "Zed", got.Blue.Picks[0])
	assert.Equal(t, "A", got.Blue.PNames[0])
	assert.Equal(t, def.Red, got.Red)
	assert.Equal(t, "PICKING", got.Game.Phase)
	assert.Equal(t, 12, got.Game.Timer)
	assert.Equal(t, def.Game.Visibility, got.Game.Visibility)
	assert.Equal(t, def.Game.BestOf, got.Game.BestOf)
	assert.Equal(t, []string{"ONLY AD"}, got.Ads)
	assert.Equal(t, def.AdConfig, got.AdConfig)
	assert.Equal(t, def.Bracket, got.Bracket)
}

func TestReconcile_ArraysReplaceWholesale(t *testing.T) {
	got, _, err := Reconcile(overlay.Default(), []byte(`{"registry":[{"id":"t1","name":"ONE","leader":"cap","logo":""}]}`))
	require.NoError(t, err)
	assert.Equal(t, []overlay.RegisteredTeam{{ID: "t1", Name: "ONE", Leader: "cap"}}, got.Registry)
}

func TestReconcile_Rejects(t *testing.T) {
	for _, payload := range []string{`null`, `[1,2,3]`, `{"blue":`, `"text"`} {
		got, _, err := Reconcile(overlay.Default(), []byte(payload))
		assert.Error(t, err, payload)
		assert.Equal(t, overlay.Default(), got)
	}
}

func TestReconcile_MistypedLeafRevertsAlone(t *testing.T) {
	snapshot := `{
		"blue": {"name": "KEEP ME", "score": 1},
		"red": {"name": "ALSO KEPT", "score": "two"},
		"ads": ["A", 7],
		"game": {"phase": "PICKING", "timer": "45"}
	}`

	got, dropped, err := Reconcile(overlay.Default(), []byte(snapshot))
	require.NoError(t, err)

	def := overlay.Default()
	assert.Equal(t, "KEEP ME", got.Blue.Name)
	assert.Equal(t, 1, got.Blue.Score)
	assert.Equal(t, "ALSO KEPT", got.Red.Name)
	assert.Equal(t, def.Red.Score, got.Red.Score)
	assert.Equal(t, def.Ads, got.Ads)
	assert.Equal(t, "PICKING", got.Game.Phase)
	assert.Equal(t, def.Game.Timer, got.Game.Timer)
	assert.Equal(t, []string{"ads", "game.timer", "red.score"}, dropped)
}

func TestCarry(t *testing.T) {
	doc := overlay.Default()
	doc.Blue.Name = "ALPHA"
	plain, err := doc.Encode()
	require.NoError(t, err)

	t.Run("nothing to carry", func(t *testing.T) {
		got, err := Carry([]byte(`{"blue":{"name":"stale"}}`), doc)
		require.NoError(t, err)
		assert.Equal(t, plain, got)

		got, err = Carry(nil, doc)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("unknown keys survive", func(t *testing.T) {
		got, err := Carry([]byte(`{"blue":{"name":"stale","flag":"br"},"caster":{"name":"Sam"}}`), doc)
		require.NoError(t, err)

		back, err := overlay.Decode(got)
		require.NoError(t, err)
		assert.Equal(t, doc, back)

		var m map[string]any
		require.NoError(t, json.Unmarshal(got, &m))
		assert.Equal(t, map[string]any{"name": "Sam"}, m["caster"])
		assert.Equal(t, "br", m["blue"].(map[string]any)["flag"])
		assert.Equal(t, "ALPHA", m["blue"].(map[string]any)["name"])
	})
}
