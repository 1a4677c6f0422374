package features

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeListDecodesArrays(t *testing.T) {
	var list TypeList
	require.NoError(t, json.Unmarshal([]byte(`["bnpl","crypto"]`), &list))
	require.Equal(t, TypeList{"bnpl", "crypto"}, list)
}

func TestTypeListDecodesBooleans(t *testing.T) {
	var enabled TypeList
	require.NoError(t, json.Unmarshal([]byte(`true`), &enabled))
	require.Equal(t, TypeList{Wildcard}, enabled)

	var disabled TypeList
	require.NoError(t, json.Unmarshal([]byte(`false`), &disabled))
	require.Empty(t, disabled)
}

func TestTypeListDecodesTypeMaps(t *testing.T) {
	var list TypeList
	require.NoError(t, json.Unmarshal([]byte(`{"bnpl":true,"checking":false,"crypto":true}`), &list))
	require.Equal(t, TypeList{"bnpl", "crypto"}, list)
}

func TestTypeListMatches(t *testing.T) {
	list := TypeList{"bnpl", "crypto"}
	require.True(t, list.Matches("bnpl"))
	require.True(t, list.Matches("BNPL"))
	require.False(t, list.Matches("checking"))
	require.False(t, list.Matches(""))

	wildcard := TypeList{Wildcard}
	require.True(t, wildcard.Matches("anything"))
	require.True(t, wildcard.Matches(""))

	var empty TypeList
	require.False(t, empty.Matches("bnpl"))
	require.False(t, empty.Restricts())
}

func TestParseRequirementsFullPayload(t *testing.T) {
	payload := []byte(`{
		"api": {"/api/bills/{id}/autopay": true},
		"service": {"Create*": ["bnpl"]},
		"repository": {"CreateTyped": {"bnpl": true}}
	}`)

	req, err := ParseRequirements(payload)
	require.NoError(t, err)
	require.Equal(t, TypeList{Wildcard}, req.API["/api/bills/{id}/autopay"])
	require.Equal(t, TypeList{"bnpl"}, req.Service["Create*"])
	require.Equal(t, TypeList{"bnpl"}, req.Repository["CreateTyped"])
}

func TestParseRequirementsEmptyPayload(t *testing.T) {
	req, err := ParseRequirements(nil)
	require.NoError(t, err)
	require.True(t, req.IsZero())
}

func TestParseRequirementsMalformedPayload(t *testing.T) {
	_, err := ParseRequirements([]byte(`{"api": 12}`))
	require.Error(t, err)
}

func TestRequirementSetCloneIsDeep(t *testing.T) {
	set := RequirementSet{
		"FLAG": {Service: LayerRequirements{"Create*": TypeList{"bnpl"}}},
	}

	cloned := set.Clone()
	cloned["FLAG"].Service["Create*"][0] = "mutated"

	require.Equal(t, TypeList{"bnpl"}, set["FLAG"].Service["Create*"])
}

func TestRequirementsLayerSelection(t *testing.T) {
	req := Requirements{
		API:        LayerRequirements{"/a": TypeList{Wildcard}},
		Service:    LayerRequirements{"M": TypeList{"bnpl"}},
		Repository: LayerRequirements{"N": TypeList{"crypto"}},
	}

	require.Len(t, req.Layer(LayerAPI), 1)
	require.Len(t, req.Layer(LayerService), 1)
	require.Len(t, req.Layer(LayerRepository), 1)
	require.Nil(t, req.Layer(Layer("other")))
}
