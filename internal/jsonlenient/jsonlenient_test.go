package jsonlenient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeStrict(t *testing.T) {
	var v map[string]any
	decoded, err := Decode(`{"a":1}`, &v)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, decoded)
	require.EqualValues(t, 1, v["a"])
}

func TestDecodeFencedWithProse(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"action\":\"finish\",\"action_input\":{\"final\":\"done\"}}\n```\nLet me know if you need more."
	var v map[string]any
	_, err := Decode(raw, &v)
	require.NoError(t, err)
	require.Equal(t, "finish", v["action"])
}

func TestDecodeTrailingCommaAndComments(t *testing.T) {
	raw := "{\n  // thought\n  \"action\": \"plan\",\n  \"action_input\": \"think more\",\n}"
	var v map[string]any
	_, err := Decode(raw, &v)
	require.NoError(t, err)
	require.Equal(t, "plan", v["action"])
}

func TestDecodeUnparseable(t *testing.T) {
	var v map[string]any
	_, err := Decode("not json at all", &v)
	require.Error(t, err)
}

func TestExtractObjectIgnoresBracesInStrings(t *testing.T) {
	s := `noise {"a":"b{c}d"} trailing`
	require.Equal(t, `{"a":"b{c}d"}`, ExtractObject(s))
}
