package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadSheet reads a problem-sheet JSON file and returns its slugs. The
// format is the NeetCode export: category → title → {url, ...}, with the
// slug as the last path segment of each problem URL.
func LoadSheet(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read sheet %s: %w", path, err)
	}

	var sheet map[string]map[string]struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &sheet); err != nil {
		return nil, fmt.Errorf("catalog: parse sheet %s: %w", path, err)
	}

	var slugs []string
	seen := make(map[string]bool)
	for _, problems := range sheet {
		for _, info := range problems {
			slug := slugFromURL(info.URL)
			if slug != "" && !seen[slug] {
				seen[slug] = true
				slugs = append(slugs, slug)
			}
		}
	}
	return slugs, nil
}

func slugFromURL(url string) string {
	url = strings.TrimRight(url, "/")
	if url == "" {
		return ""
	}
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return ""
	}
	return url[idx+1:]
}
