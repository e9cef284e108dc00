package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedIntent is returned when a search payload lacks what its mode needs.
var ErrMalformedIntent = errors.New("malformed search intent")

// SearchRequest is the inbound "search" payload.
type SearchRequest struct {
	Mode      Mode     `json:"mode"`
	Language  string   `json:"language,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Question  string   `json:"question,omitempty"`
	Role      Role     `json:"role,omitempty"`
}

// Intent is a validated SearchRequest.
type Intent struct {
	Mode      Mode
	Language  string
	Interests []string
	Question  string
	Role      Role
}

// Validate checks the request against the rules of its mode and returns the
// normalized intent. Fields that do not apply to the mode are dropped.
func (r SearchRequest) Validate() (Intent, error) {
	if !r.Mode.Valid() {
		return Intent{}, fmt.Errorf("%w: unknown mode %q", ErrMalformedIntent, r.Mode)
	}

	in := Intent{
		Mode:     r.Mode,
		Language: strings.TrimSpace(r.Language),
	}

	switch r.Mode {
	case ModeSpy:
		switch r.Role {
		case RoleQuestioner:
			q := strings.TrimSpace(r.Question)
			if q == "" {
				return Intent{}, fmt.Errorf("%w: questioner needs a question", ErrMalformedIntent)
			}
			in.Role = RoleQuestioner
			in.Question = q
		case RoleWatcher:
			in.Role = RoleWatcher
		default:
			return Intent{}, fmt.Errorf("%w: spy mode needs role questioner or watcher", ErrMalformedIntent)
		}
	case ModeInterests:
		in.Interests = NormalizeInterests(r.Interests)
	}

	return in, nil
}

// NormalizeInterests trims and lower-cases tags, dropping empties and
// duplicates while keeping the first-seen order.
func NormalizeInterests(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// CommonInterests lists the tags of a that also appear in b, in a's order.
func CommonInterests(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	common := make([]string, 0)
	for _, t := range a {
		if _, ok := set[t]; ok {
			common = append(common, t)
		}
	}
	return common
}
