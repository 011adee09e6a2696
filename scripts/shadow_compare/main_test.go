package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestDifferCompare(t *testing.T) {
	d := differ{ignore: map[string]struct{}{"generated_at": {}}, tolerance: 0.01}

	legacy := decode(t, `{"generated_at":"a","rates":{"success_rate":66.67,"bypass_rate":10},"peak_hours":[9,10],"legacy_only":1}`)
	current := decode(t, `{"generated_at":"b","rates":{"success_rate":66.666,"bypass_rate":12},"peak_hours":[9],"go_only":true}`)

	diffs := d.compare("", legacy, current)
	assert.ElementsMatch(t, []string{
		"go_only: only in go",
		"legacy_only: missing in go",
		"peak_hours: length 2 vs 1",
		"rates.bypass_rate: 10 vs 12",
	}, diffs)
}

func TestDifferCompareTypeMismatch(t *testing.T) {
	d := differ{tolerance: 0}
	assert.Equal(t, []string{"<root>: object vs []interface {}"}, d.compare("", decode(t, `{}`), decode(t, `[]`)))
	assert.Empty(t, d.compare("x", decode(t, `"same"`), decode(t, `"same"`)))
}

func TestCompareTargetSections(t *testing.T) {
	legacy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"verification_summary":{"total_attempts":3},"noise":{"x":1}}`))
	}))
	defer legacy.Close()

	var gotAuth string
	goAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":{"verification_summary":{"total_attempts":3},"noise":{"x":2}},"meta":{"cache_hit":false}}`))
	}))
	defer goAPI.Close()

	tgt := target{Name: "summary", LegacyPath: "/api/analytics/total", GoPath: "/api/v1/analytics", Critical: true, Sections: []string{"verification_summary"}}
	comp := compareTarget(http.DefaultClient, goAPI.URL, legacy.URL, "tok", tgt, differ{tolerance: 0.01})

	require.NoError(t, comp.Error)
	assert.True(t, comp.ok())
	assert.Equal(t, "Bearer tok", gotAuth)

	tgt.Sections = nil
	comp = compareTarget(http.DefaultClient, goAPI.URL, legacy.URL, "", tgt, differ{tolerance: 0.01})
	assert.Equal(t, []string{"noise.x: 1 vs 2"}, comp.Diffs)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, []comparison{
		{Target: target{Name: "summary"}, GoStatus: 200, LegacyStatus: 200},
		{Target: target{Name: "trends"}, Error: errors.New("boom")},
	})
	out := buf.String()
	assert.Contains(t, out, "[OK] summary")
	assert.Contains(t, out, "[ERROR] trends")
	assert.Contains(t, out, "Error: boom")
}
