package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestResolveHonorsQValues(t *testing.T) {
	t.Parallel()

	b, err := Load("en", "en", "ja")
	require.NoError(t, err)

	require.Equal(t, "ja", b.Resolve("en;q=0.8, ja;q=0.9"))
	require.Equal(t, "ja", b.Resolve("ja-JP,ja;q=0.9"))
	require.Equal(t, "en", b.Resolve("en-GB"))
	require.Equal(t, "en", b.Resolve("fr-FR, de;q=0.5"))
	require.Equal(t, "en", b.Resolve(""))
	require.Equal(t, "en", b.Resolve(";;;garbage"))
}

func TestMatch(t *testing.T) {
	t.Parallel()

	b, err := Load("en")
	require.NoError(t, err)

	lang, ok := b.Match("ja")
	require.True(t, ok)
	require.Equal(t, "ja", lang)

	lang, ok = b.Match("en-US")
	require.True(t, ok)
	require.Equal(t, "en", lang)

	_, ok = b.Match("xx-invalid-tag!")
	require.False(t, ok)
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	b, err := Load("en")
	require.NoError(t, err)
	require.Equal(t, []string{"en", "ja"}, b.Supported())
	require.Equal(t, "en", b.Fallback())

	require.Equal(t, "Score This Lead", b.T("en", "submit.score"))
	require.Equal(t, "Update Lead Score", b.T("en", "submit.update"))
	require.Equal(t, "Analyzing…", b.T("en", "submit.analyzing"))
	require.Equal(t, "Lead profile: 67% complete", b.T("en", "progress.label", 67))
	require.Equal(t, "リードスコアを更新", b.T("ja", "submit.update"))
	require.Equal(t, "Score This Lead", b.T("de", "submit.score"), "unknown languages use the fallback")
	require.Equal(t, "missing.key", b.T("ja", "missing.key"))
}

func TestLoadFSFallsBackForMissingKeys(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"cat/en.yaml": {Data: []byte("greeting:\n  hello: Hello\n  bye: Bye\n")},
		"cat/ja.yaml": {Data: []byte("greeting:\n  hello: こんにちは\n")},
	}
	b, err := LoadFS(fsys, "cat", "en", "ja", "fr")
	require.NoError(t, err)
	require.Equal(t, []string{"en", "ja"}, b.Supported(), "missing non-default catalogs are skipped")
	require.Equal(t, "こんにちは", b.T("ja", "greeting.hello"))
	require.Equal(t, "Bye", b.T("ja", "greeting.bye"))

	_, err = LoadFS(fsys, "cat", "fr")
	require.Error(t, err)
}
