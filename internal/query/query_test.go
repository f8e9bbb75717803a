package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxbrian/filterdict/internal/filters"
	"github.com/xxxbrian/filterdict/internal/normalizer"
	"github.com/xxxbrian/filterdict/internal/query"
)

func convert(t *testing.T, enc normalizer.Encoding, lines ...string) []normalizer.Map {
	t.Helper()
	n := normalizer.New(nil, normalizer.Options{Encoding: enc})
	maps, err := n.LinesToMaps(lines, filters.ModeBody)
	require.NoError(t, err)
	return maps
}

func TestSelectorMatch(t *testing.T) {
	lines := []string{
		"||ads.example.com^",
		"@@||good.example.com^",
		"example.com##.banner",
		"! comment",
		"||tracker.com^$domain=news.com|~shop.news.com",
	}

	tests := []struct {
		expr string
		want []int
	}{
		{`kind == "Filter"`, []int{0, 1, 2, 4}},
		{`kind == "Filter" && record.action == "block"`, []int{0, 4}},
		{`kind == "Comment"`, []int{3}},
		{`has(record.options) && "domain" in record.options && "news.com" in record.options.domain && record.options.domain["news.com"] == true`, []int{4}},
		{`has(record.selector) && record.selector.type == "css"`, []int{2}},
	}

	for _, enc := range []normalizer.Encoding{normalizer.Native, normalizer.UTF8} {
		maps := convert(t, enc, lines...)
		for _, tc := range tests {
			t.Run(enc.Name()+"/"+tc.expr, func(t *testing.T) {
				sel, err := query.Compile(tc.expr)
				require.NoError(t, err)

				var got []int
				for i, m := range maps {
					ok, err := sel.Match(m)
					require.NoError(t, err)
					if ok {
						got = append(got, i)
					}
				}
				assert.Equal(t, tc.want, got)
			})
		}
	}
}

func TestCompileRejectsNonBool(t *testing.T) {
	_, err := query.Compile(`kind + "x"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return bool")

	_, err = query.Compile(`kind ==`)
	require.Error(t, err)
}

func TestFilter(t *testing.T) {
	maps := convert(t, normalizer.Native, "||a.com^", "", "||b.com^")

	sel, err := query.Compile(`kind == "Filter"`)
	require.NoError(t, err)
	kept, err := sel.Filter(maps)
	require.NoError(t, err)
	require.Len(t, kept, 2)

	var none *query.Selector
	all, err := none.Filter(maps)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMatchEvalError(t *testing.T) {
	maps := convert(t, normalizer.Native, "! note")
	sel, err := query.Compile(`record.options.size() > 0`)
	require.NoError(t, err)

	_, err = sel.Match(maps[0])
	assert.Error(t, err)
}
