package analysis

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

var fenceRE = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// stripFences returns the contents of the first fenced code block in s, or s
// itself when there is none. Stray leading prose before a bare object is
// dropped too.
func stripFences(s string) string {
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '{'); i > 0 {
		if j := strings.LastIndexByte(s, '}'); j > i {
			s = s[i : j+1]
		}
	}
	return s
}

// decodeReport parses a model reply into a normalized report. An empty
// reply decodes to the zero report, matching a model that returned "{}".
func decodeReport(reply string) (PropertyReport, error) {
	var r PropertyReport
	body := stripFences(reply)
	if body == "" {
		body = "{}"
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return PropertyReport{}, malformed(err)
	}
	r.normalize()
	return r, nil
}

var (
	mdLinkRE  = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	bareURLRE = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)
)

// extractSources collects cited URLs from a markdown reply, markdown links
// first and then bare URLs, each deduplicated. Links keep their text as
// title; bare URLs use their host.
func extractSources(text string) []Source {
	out := []Source{}
	seen := map[string]bool{}
	add := func(title, uri string) {
		uri = strings.TrimRight(uri, ".,;:!?")
		if seen[uri] {
			return
		}
		seen[uri] = true
		out = append(out, Source{Title: title, URI: uri})
	}

	for _, m := range mdLinkRE.FindAllStringSubmatch(text, -1) {
		add(strings.TrimSpace(m[1]), m[2])
	}
	rest := mdLinkRE.ReplaceAllString(text, "")
	for _, u := range bareURLRE.FindAllString(rest, -1) {
		title := u
		if parsed, err := url.Parse(strings.TrimRight(u, ".,;:!?")); err == nil && parsed.Host != "" {
			title = parsed.Host
		}
		add(title, u)
	}
	return out
}
