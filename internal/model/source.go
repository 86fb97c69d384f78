package model

// SourceKind selects the adapter used for a source.
type SourceKind string

const (
	SourceRSS    SourceKind = "rss"
	SourceSearch SourceKind = "search"
)

// Source describes one feed or one search query.
type Source struct {
	Name     string     `json:"name" yaml:"name" mapstructure:"name"`
	Kind     SourceKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	URL      string     `json:"url,omitempty" yaml:"url" mapstructure:"url"`
	Query    string     `json:"query,omitempty" yaml:"query" mapstructure:"query"`
	Provider string     `json:"provider,omitempty" yaml:"provider" mapstructure:"provider"`
	Credible bool       `json:"credible,omitempty" yaml:"credible" mapstructure:"credible"`
}

// Key identifies the source for circuit breaking and logging.
func (s Source) Key() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Kind == SourceSearch {
		return s.Provider + ":" + s.Query
	}
	return s.URL
}
