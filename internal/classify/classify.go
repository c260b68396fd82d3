// Package classify turns sshd log lines into typed events.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tinytelemetry/sshnotify/internal/model"
)

// Marker is the token every sshd line carries. Lines without it are rejected
// before any pattern runs.
const Marker = "sshd"

// AllToken enables every category in ParseCategories.
const AllToken = "all"

type rule struct {
	category model.Category
	pattern  *regexp.Regexp
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{model.LoginSucceeded, regexp.MustCompile(`sshd\[\d+\]: Accepted \S+ for (\S+) from (\S+)`)},
	{model.LoginFailed, regexp.MustCompile(`sshd\[\d+\]: Failed \S+ for (?:invalid user )?(\S+) from (\S+)`)},
	{model.Disconnected, regexp.MustCompile(`sshd\[\d+\]: Disconnected from authenticating user (\S+) (\S+)`)},
}

// CategorySet is the set of enabled categories.
type CategorySet map[model.Category]struct{}

// AllCategories returns a set with every category enabled.
func AllCategories() CategorySet {
	set := make(CategorySet, len(model.Categories))
	for _, c := range model.Categories {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether c is enabled.
func (s CategorySet) Has(c model.Category) bool {
	_, ok := s[c]
	return ok
}

// String renders the set as the comma-separated form ParseCategories accepts.
func (s CategorySet) String() string {
	if len(s) == len(model.Categories) {
		return AllToken
	}
	names := make([]string, 0, len(s))
	for _, c := range model.Categories {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return strings.Join(names, ",")
}

// ParseCategories parses a comma-separated list of category names
// ("accepted", "failed", "disconnected") or "all".
func ParseCategories(s string) (CategorySet, error) {
	set := make(CategorySet)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if tok == AllToken {
			return AllCategories(), nil
		}
		c, ok := categoryByName(tok)
		if !ok {
			return nil, fmt.Errorf("unknown event category %q", tok)
		}
		set[c] = struct{}{}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no event categories in %q", s)
	}
	return set, nil
}

func categoryByName(name string) (model.Category, bool) {
	for _, c := range model.Categories {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// Classify maps a log line to at most one event of an enabled category.
// It keeps its own marker check so callers outside the pipeline get the same
// result for lines without it.
func Classify(line string, enabled CategorySet) (model.Event, bool) {
	if !strings.Contains(line, Marker) {
		return model.Event{}, false
	}
	for _, r := range rules {
		if !enabled.Has(r.category) {
			continue
		}
		m := r.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return model.Event{
			Category:   r.category,
			User:       m[1],
			SourceIP:   m[2],
			Priority:   r.category.Priority(),
			Raw:        line,
			ObservedAt: time.Now(),
		}, true
	}
	return model.Event{}, false
}

// Classifier applies Classify with a fixed set of enabled categories.
type Classifier struct {
	enabled CategorySet
}

// New creates a Classifier. A nil set enables every category.
func New(enabled CategorySet) *Classifier {
	if enabled == nil {
		enabled = AllCategories()
	}
	return &Classifier{enabled: enabled}
}

func (c *Classifier) Classify(line string) (model.Event, bool) {
	return Classify(line, c.enabled)
}

// Enabled returns the categories this classifier produces.
func (c *Classifier) Enabled() CategorySet { return c.enabled }
