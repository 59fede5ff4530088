package induction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// ErrExtractionUnsupported means no example element could be found to
// generalize; callers fall back to heuristic extraction.
var ErrExtractionUnsupported = errors.New("extraction unsupported")

// GenerateSelector produces a CSS selector generalizing the given example
// elements. Identical inputs always produce identical selectors.
func GenerateSelector(elements *goquery.Selection) (string, error) {
	if elements == nil || elements.Length() == 0 {
		return "", fmt.Errorf("%w: no example elements", ErrExtractionUnsupported)
	}

	selector := generate(elements)
	if _, err := cascadia.Compile(selector); err != nil {
		return "", fmt.Errorf("generated invalid selector %q: %w", selector, err)
	}
	return selector, nil
}

func generate(elements *goquery.Selection) string {
	if elements.Length() == 1 {
		return generateSingle(elements)
	}

	classes := make([]string, 0, elements.Length())
	tags := make([]string, 0, elements.Length())
	elements.Each(func(_ int, el *goquery.Selection) {
		classes = append(classes, className(el))
		tags = append(tags, goquery.NodeName(el))
	})

	if class := mode(classes); class != "" {
		return classSelector(class)
	}

	tag := mode(tags)
	parent := elements.First().Parent()
	if parent.Length() == 0 {
		return tag
	}
	if id, _ := parent.Attr("id"); strings.TrimSpace(id) != "" {
		return generateSingle(parent) + ">" + tag
	}
	return generateSingle(parent)
}

func generateSingle(el *goquery.Selection) string {
	if id, _ := el.Attr("id"); strings.TrimSpace(id) != "" {
		return "#" + escapeIdent(strings.TrimSpace(id))
	}
	if class := className(el); class != "" {
		return classSelector(class)
	}

	tag := goquery.NodeName(el)
	parent := el.Parent()
	if parent.Length() == 0 {
		return tag
	}
	return generateSingle(parent) + ">" + tag
}

// className returns the element's class list normalized to single spaces.
func className(el *goquery.Selection) string {
	class, _ := el.Attr("class")
	return strings.Join(strings.Fields(class), " ")
}

func classSelector(class string) string {
	names := strings.Fields(class)
	for i, n := range names {
		names[i] = escapeIdent(n)
	}
	return "." + strings.Join(names, ".")
}

// mode returns the most frequent value; ties go to the first encountered.
func mode(values []string) string {
	counts := make(map[string]int, len(values))
	order := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}

	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// escapeIdent escapes characters that are not valid in a CSS identifier.
func escapeIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == '_' || r >= 0x80,
			r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, "\\%x ", r)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
