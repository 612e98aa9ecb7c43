package tarefa

import (
	"sort"
	"strconv"
	"strings"
)

// Kind is one of the fixed subtask kinds. The zero value is invalid.
type Kind int

const (
	KindText Kind = iota + 1
	KindLayout
	KindHTML
)

type kindInfo struct {
	name       string // stored name ("Tipo Subtarefa")
	label      string
	precedence int
	aliases    []string
}

var kinds = map[Kind]kindInfo{
	KindText:   {name: "Texto", label: "Text", precedence: 1, aliases: []string{"texto", "text", "t"}},
	KindLayout: {name: "Layout", label: "Layout", precedence: 2, aliases: []string{"layout", "l"}},
	KindHTML:   {name: "HTML", label: "HTML", precedence: 3, aliases: []string{"html", "h"}},
}

// AllKinds returns every kind in precedence order.
func AllKinds() []Kind { return []Kind{KindText, KindLayout, KindHTML} }

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Precedence is the fixed rank of the kind (Text=1 < Layout=2 < HTML=3).
// Earlier ranks receive earlier delivery dates.
func (k Kind) Precedence() int { return kinds[k].precedence }

// String returns the stored name of the kind.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Label returns a display label.
func (k Kind) Label() string {
	if info, ok := kinds[k]; ok {
		return info.label
	}
	return k.String()
}

// ParseKind accepts stored names, English labels and one-letter aliases,
// case-insensitively.
func ParseKind(s string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, k := range AllKinds() {
		for _, a := range kinds[k].aliases {
			if v == a {
				return k, nil
			}
		}
	}
	return 0, &ValidationError{Reason: ReasonUnknownKind, Detail: s}
}

// ParseKinds parses a comma separated list such as "text,layout,html" or "t,h".
func ParseKinds(s string) ([]Kind, error) {
	var out []Kind
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// SortKinds returns a copy of ks ordered by precedence.
func SortKinds(ks []Kind) []Kind {
	out := append([]Kind(nil), ks...)
	sort.Slice(out, func(i, j int) bool { return out[i].Precedence() < out[j].Precedence() })
	return out
}

// ValidateKinds rejects empty selections, unknown kinds and duplicates.
func ValidateKinds(ks []Kind) error {
	if len(ks) == 0 {
		return &ValidationError{Reason: ReasonNoSubtaskSelected}
	}
	seen := make(map[Kind]bool, len(ks))
	for _, k := range ks {
		if !k.Valid() {
			return &ValidationError{Reason: ReasonUnknownKind, Detail: k.String()}
		}
		if seen[k] {
			return &ValidationError{Reason: ReasonDuplicateKind, Detail: k.String()}
		}
		seen[k] = true
	}
	return nil
}
