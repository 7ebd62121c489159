package counter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"countopt/internal/dql"
)

// Suite document envelope.
const (
	SuiteAPIVersion = "countopt/v1"
	KindQuerySuite  = "QuerySuite"
)

// SuiteDoc is a named list of queries to verify together.
type SuiteDoc struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Queries    []SuiteCase `yaml:"queries"`
}

// SuiteCase is one query of a suite with its bound parameters.
type SuiteCase struct {
	Name        string         `yaml:"name"`
	DQL         string         `yaml:"dql"`
	Params      map[string]any `yaml:"params,omitempty"`
	FirstResult int            `yaml:"first_result,omitempty"`
	MaxResults  int            `yaml:"max_results,omitempty"`
}

// Query parses the DQL and binds the case's parameters and pagination.
func (c SuiteCase) Query() (*dql.QuerySpec, error) {
	q, err := dql.Parse(c.DQL)
	if err != nil {
		return nil, err
	}
	for k, v := range c.Params {
		q.Params[k] = v
	}
	q.FirstResult = c.FirstResult
	q.MaxResults = c.MaxResults
	return q, nil
}

// LoadSuite reads a QuerySuite document from path.
func LoadSuite(path string) (*SuiteDoc, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// ParseSuite decodes a QuerySuite document. Unknown fields are rejected.
func ParseSuite(data []byte) (*SuiteDoc, error) {
	var doc SuiteDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse suite: %w", err)
	}
	if doc.APIVersion != SuiteAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q (expected %q)", doc.APIVersion, SuiteAPIVersion)
	}
	if doc.Kind != KindQuerySuite {
		return nil, fmt.Errorf("unexpected kind %q (expected %q)", doc.Kind, KindQuerySuite)
	}
	seen := make(map[string]bool, len(doc.Queries))
	for i, c := range doc.Queries {
		if c.Name == "" {
			return nil, fmt.Errorf("queries[%d]: name is required", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("queries[%d]: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true
		if c.DQL == "" {
			return nil, fmt.Errorf("query %q: dql is required", c.Name)
		}
	}
	return &doc, nil
}

// BatchConfig bounds how hard VerifySuite drives the database.
type BatchConfig struct {
	// Concurrency is the number of queries verified at once (default 4).
	Concurrency int
	// QueriesPerSecond throttles query starts; zero disables throttling.
	QueriesPerSecond float64
}

// SuiteResult is the outcome of verifying one suite case. Exactly one of
// Verification and Error is set.
type SuiteResult struct {
	Name         string        `json:"name"`
	Verification *Verification `json:"verification,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// SuiteReport collects the results of a suite run in case order.
type SuiteReport struct {
	Results    []SuiteResult `json:"results"`
	Passed     int           `json:"passed"`
	Mismatched int           `json:"mismatched"`
	Failed     int           `json:"failed"`
}

// OK reports whether every case verified with matching counts.
func (r *SuiteReport) OK() bool {
	return r.Mismatched == 0 && r.Failed == 0
}

// VerifySuite verifies every case of doc. Per-case errors are recorded in
// the report; the returned error is set only when ctx ends the run.
func (c *Counter) VerifySuite(ctx context.Context, doc *SuiteDoc, cfg BatchConfig) (*SuiteReport, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	var limiter *rate.Limiter
	if cfg.QueriesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QueriesPerSecond), 1)
	}

	results := make([]SuiteResult, len(doc.Queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	for i, sc := range doc.Queries {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := SuiteResult{Name: sc.Name}
			q, err := sc.Query()
			if err == nil {
				res.Verification, err = c.Verify(gctx, q)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verify suite: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("verify suite: %w", err)
	}

	report := &SuiteReport{Results: results}
	for _, r := range results {
		switch {
		case r.Error != "":
			report.Failed++
		case r.Verification.Match:
			report.Passed++
		default:
			report.Mismatched++
		}
	}
	c.logger.Info("suite verified", "queries", len(results),
		"passed", report.Passed, "mismatched", report.Mismatched, "failed", report.Failed)
	return report, nil
}
