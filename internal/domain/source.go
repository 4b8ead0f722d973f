package domain

// Source identifies which vote-count signal produced a county's estimate.
type Source string

// Sources in strict priority order: the first one usable for a county wins.
const (
	SourceDifferential Source = "DIFFERENTIAL"
	SourceMail         Source = "MAIL"
	SourceTotal        Source = "TOTAL"
)

// SourcePriority lists sources from most to least preferred.
var SourcePriority = []Source{SourceDifferential, SourceMail, SourceTotal}

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s Source) IsValid() bool {
	return s == SourceDifferential || s == SourceMail || s == SourceTotal
}
