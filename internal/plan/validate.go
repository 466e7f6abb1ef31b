package plan

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks that the plan can be executed as-is. A plan failing
// validation must never reach the coordinator's main loop.
func (p ExecutionPlan) Validate() error {
	var issues []string

	if len(p.Providers) == 0 {
		issues = append(issues, "at least one provider is required")
	}
	providerIDs := make(map[string]struct{}, len(p.Providers))
	for i, prov := range p.Providers {
		if strings.TrimSpace(prov.ID) == "" {
			issues = append(issues, fmt.Sprintf("providers[%d]: id is required", i))
		} else if _, dup := providerIDs[prov.ID]; dup {
			issues = append(issues, fmt.Sprintf("providers[%d]: duplicate id %q", i, prov.ID))
		} else {
			providerIDs[prov.ID] = struct{}{}
		}
		if err := validateEndpoint(prov.URL); err != nil {
			issues = append(issues, fmt.Sprintf("providers[%d] (%s): %v", i, prov.Name, err))
		}
	}

	if len(p.Tests) == 0 {
		issues = append(issues, "at least one test is required")
	}
	testIDs := make(map[int]struct{}, len(p.Tests))
	for i, t := range p.Tests {
		if _, dup := testIDs[t.ID]; dup {
			issues = append(issues, fmt.Sprintf("tests[%d]: duplicate id %d", i, t.ID))
		}
		testIDs[t.ID] = struct{}{}
		if strings.TrimSpace(t.Method) == "" {
			issues = append(issues, fmt.Sprintf("tests[%d] (%s): method is required", i, t.Name))
		}
		switch t.Category {
		case CategorySimple, CategoryMedium, CategoryComplex, CategoryLoad:
		default:
			issues = append(issues, fmt.Sprintf("tests[%d] (%s): unknown category %q", i, t.Name, t.Category))
		}
		switch t.Label {
		case LabelLatest, LabelArchival:
		default:
			issues = append(issues, fmt.Sprintf("tests[%d] (%s): unknown label %q", i, t.Name, t.Label))
		}
		if t.Concurrency < 0 {
			issues = append(issues, fmt.Sprintf("tests[%d] (%s): concurrency must be non-negative", i, t.Name))
		}
	}

	cfg := p.Config
	if cfg.Rounds < 1 {
		issues = append(issues, "rounds must be at least 1")
	}
	if cfg.Timeout < 0 {
		issues = append(issues, "timeout must be non-negative")
	}
	if cfg.InterRoundDelay < 0 || cfg.InterTestDelay < 0 || cfg.LoadCooldown < 0 {
		issues = append(issues, "delays must be non-negative")
	}
	if cfg.Retry.MaxAttempts < 0 {
		issues = append(issues, "retry max_attempts must be non-negative")
	}
	if cfg.Retry.Multiplier < 0 {
		issues = append(issues, "retry multiplier must be non-negative")
	}
	for tier, n := range cfg.LoadConcurrency {
		if n < 0 {
			issues = append(issues, fmt.Sprintf("load concurrency for tier %q must be non-negative", tier))
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}
