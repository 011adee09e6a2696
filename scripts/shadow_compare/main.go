package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// target pairs a legacy analytics endpoint with its Go counterpart.
type target struct {
	Name       string   `json:"name"`
	LegacyPath string   `json:"legacy_path"`
	GoPath     string   `json:"go_path"`
	Critical   bool     `json:"critical"`
	Sections   []string `json:"sections"`
}

type config struct {
	Targets []target `json:"targets"`
	Ignore  []string `json:"ignore"`
}

type comparison struct {
	Target         target
	LegacyStatus   int
	GoStatus       int
	Diffs          []string
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

func (c comparison) ok() bool {
	return c.Error == nil && c.LegacyStatus == c.GoStatus && len(c.Diffs) == 0
}

// defaultIgnore lists keys that legitimately differ between runs.
var defaultIgnore = []string{"generated_at", "processing_time_ms", "cache_hit", "schema_version", "view", "duration_so_far"}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		token       string
		tolerance   float64
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:5000", "Legacy API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&token, "token", os.Getenv("SHADOW_TOKEN"), "Bearer token sent to the Go API")
	flag.Float64Var(&tolerance, "tolerance", 0.01, "Absolute tolerance for numeric fields")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "HTTP client timeout")
	flag.Parse()

	cfg, err := loadConfig(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}
	ignore := make(map[string]struct{})
	for _, key := range append(defaultIgnore, cfg.Ignore...) {
		ignore[key] = struct{}{}
	}

	client := &http.Client{Timeout: timeout}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)

	for _, t := range cfg.Targets {
		comp := compareTarget(client, goBase, legacyBase, token, t, differ{ignore: ignore, tolerance: tolerance})
		if !comp.ok() {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(os.Stdout, comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) (config, error) {
	var cfg config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Targets) == 0 {
		return cfg, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg, nil
}

func compareTarget(client *http.Client, goBase, legacyBase, token string, tgt target, d differ) comparison {
	comp := comparison{Target: tgt}

	goStatus, goBody, goDur, goErr := fetchJSON(client, goBase, tgt.GoPath, token)
	legacyStatus, legacyBody, legacyDur, legacyErr := fetchJSON(client, legacyBase, tgt.LegacyPath, "")
	comp.DurationGo = goDur
	comp.DurationLegacy = legacyDur
	comp.GoStatus = goStatus
	comp.LegacyStatus = legacyStatus

	if goErr != nil {
		comp.Error = fmt.Errorf("go request failed: %w", goErr)
		return comp
	}
	if legacyErr != nil {
		comp.Error = fmt.Errorf("legacy request failed: %w", legacyErr)
		return comp
	}

	goReport := unwrapEnvelope(goBody)
	if len(tgt.Sections) == 0 {
		comp.Diffs = d.compare("", legacyBody, goReport)
		return comp
	}
	legacyMap, _ := legacyBody.(map[string]interface{})
	goMap, _ := goReport.(map[string]interface{})
	for _, section := range tgt.Sections {
		comp.Diffs = append(comp.Diffs, d.compare(section, legacyMap[section], goMap[section])...)
	}
	return comp
}

func fetchJSON(client *http.Client, base, path, token string) (int, interface{}, time.Duration, error) {
	if client == nil {
		return 0, nil, 0, errors.New("nil client")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, elapsed, fmt.Errorf("read body: %w", err)
	}
	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return resp.StatusCode, nil, elapsed, fmt.Errorf("decode body: %w", err)
	}
	return resp.StatusCode, body, elapsed, nil
}

// unwrapEnvelope strips the {"data": ...} response envelope of the Go API.
func unwrapEnvelope(body interface{}) interface{} {
	if m, ok := body.(map[string]interface{}); ok {
		if data, ok := m["data"]; ok {
			return data
		}
	}
	return body
}

type differ struct {
	ignore    map[string]struct{}
	tolerance float64
}

// compare walks both documents and returns one line per differing leaf.
func (d differ) compare(path string, legacy, current interface{}) []string {
	switch l := legacy.(type) {
	case map[string]interface{}:
		c, ok := current.(map[string]interface{})
		if !ok {
			return []string{fmt.Sprintf("%s: object vs %T", display(path), current)}
		}
		keys := make(map[string]struct{}, len(l)+len(c))
		for k := range l {
			keys[k] = struct{}{}
		}
		for k := range c {
			keys[k] = struct{}{}
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			if _, skip := d.ignore[k]; !skip {
				sorted = append(sorted, k)
			}
		}
		sort.Strings(sorted)

		var diffs []string
		for _, k := range sorted {
			lv, lok := l[k]
			cv, cok := c[k]
			child := join(path, k)
			switch {
			case !lok:
				diffs = append(diffs, fmt.Sprintf("%s: only in go", child))
			case !cok:
				diffs = append(diffs, fmt.Sprintf("%s: missing in go", child))
			default:
				diffs = append(diffs, d.compare(child, lv, cv)...)
			}
		}
		return diffs
	case []interface{}:
		c, ok := current.([]interface{})
		if !ok {
			return []string{fmt.Sprintf("%s: array vs %T", display(path), current)}
		}
		if len(l) != len(c) {
			return []string{fmt.Sprintf("%s: length %d vs %d", display(path), len(l), len(c))}
		}
		var diffs []string
		for i := range l {
			diffs = append(diffs, d.compare(fmt.Sprintf("%s[%d]", path, i), l[i], c[i])...)
		}
		return diffs
	case float64:
		c, ok := current.(float64)
		if !ok || math.Abs(l-c) > d.tolerance {
			return []string{fmt.Sprintf("%s: %v vs %v", display(path), legacy, current)}
		}
		return nil
	default:
		if fmt.Sprint(legacy) != fmt.Sprint(current) {
			return []string{fmt.Sprintf("%s: %v vs %v", display(path), legacy, current)}
		}
		return nil
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func display(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

func printReport(w io.Writer, results []comparison) {
	fmt.Fprintln(w, "Analytics Shadow Compare")
	fmt.Fprintln(w, "========================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.ok() {
			status = "DIFF"
		}
		fmt.Fprintf(w, "[%s] %s (%s <-> %s)\n", status, res.Target.Name, res.Target.LegacyPath, res.Target.GoPath)
		fmt.Fprintf(w, "  Go Status: %d (%s) | Legacy Status: %d (%s) | Critical: %t\n",
			res.GoStatus, res.DurationGo, res.LegacyStatus, res.DurationLegacy, res.Target.Critical)
		if res.Error != nil {
			fmt.Fprintf(w, "  Error: %v\n", res.Error)
			continue
		}
		const maxLines = 20
		for i, diff := range res.Diffs {
			if i == maxLines {
				fmt.Fprintf(w, "  ... %d more\n", len(res.Diffs)-maxLines)
				break
			}
			fmt.Fprintf(w, "  - %s\n", diff)
		}
	}
}
