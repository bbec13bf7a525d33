// Package pageclass classifies platform URLs into the page categories the
// automation branches on, and extracts quiz identity from exam URLs. All
// functions are pure; the orchestrator calls them on every navigation event
// and poll.
package pageclass

import (
	"net/url"
	"strings"

	"studydrive/internal/domain"
)

// PageType is the logical category of a platform page.
type PageType int

const (
	Unsupported PageType = iota
	Quiz
	MasterySummary
	ProgressDetail
	AnalysisDetail
	StudyHome
)

func (t PageType) String() string {
	switch t {
	case Quiz:
		return "quiz"
	case MasterySummary:
		return "mastery-summary"
	case ProgressDetail:
		return "progress-detail"
	case AnalysisDetail:
		return "analysis-detail"
	case StudyHome:
		return "study-home"
	default:
		return "unsupported"
	}
}

// Variant distinguishes the two supported site variants, which route the
// same logical pages differently (query-string vs path-segment).
type Variant int

const (
	VariantNone Variant = iota
	VariantWisdom
	VariantFusion
)

const (
	hostWisdom = "studywisdomh5.zhihuishu.com"
	hostFusion = "fusioncourseh5.zhihuishu.com"
)

// VariantOf returns the site variant for a hostname, or VariantNone when
// the host is not in the allow-list.
func VariantOf(host string) Variant {
	switch host {
	case hostWisdom:
		return VariantWisdom
	case hostFusion:
		return VariantFusion
	default:
		return VariantNone
	}
}

// Classify maps a URL to its page category. Any URL whose host is outside
// the allow-list is Unsupported regardless of path. Quiz deliberately
// excludes the progress/analysis detail pages, whose URLs also contain the
// exam token.
func Classify(rawURL string) PageType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Unsupported
	}
	variant := VariantOf(u.Hostname())
	if variant == VariantNone {
		return Unsupported
	}

	// Single-page routing puts tokens in either the path or the fragment.
	// Match against the combined route only, never the scheme/host part
	// (the wisdom hostname itself contains "study").
	route := routePath(u)
	switch {
	case isProgressDetail(route, variant):
		return ProgressDetail
	case isAnalysisDetail(route, variant):
		return AnalysisDetail
	case strings.Contains(route, "/exam"):
		return Quiz
	case strings.Contains(route, "/study/mastery") || strings.Contains(route, "/mastery"):
		return MasterySummary
	case strings.Contains(route, "/study"):
		return StudyHome
	default:
		return Unsupported
	}
}

func isProgressDetail(route string, variant Variant) bool {
	if variant == VariantFusion {
		return strings.Contains(route, "/point/")
	}
	return strings.Contains(route, "/pointOfMastery")
}

func isAnalysisDetail(route string, variant Variant) bool {
	if variant == VariantFusion {
		return strings.Contains(route, "/examPreview/")
	}
	return strings.Contains(route, "/examAnalysis")
}

// routePath joins the URL path with the fragment's own path so hash-routed
// pages (stuExamWeb.html#/webExamList/dohomework/exam?...) expose the same
// route tokens as plainly-routed ones. The fragment's query part is dropped.
func routePath(u *url.URL) string {
	frag := u.Fragment
	if i := strings.Index(frag, "?"); i >= 0 {
		frag = frag[:i]
	}
	if frag == "" {
		return u.Path
	}
	return u.Path + "/" + strings.TrimPrefix(frag, "/")
}

// routeQuery reads query parameters the way the page router does: from the
// real query string, falling back to the query embedded in the fragment for
// hash-routed pages. Real query keys win on collision.
func routeQuery(u *url.URL) url.Values {
	query := u.Query()
	if i := strings.Index(u.Fragment, "?"); i >= 0 {
		if fragQuery, err := url.ParseQuery(u.Fragment[i+1:]); err == nil {
			for key, values := range fragQuery {
				if _, ok := query[key]; !ok {
					query[key] = values
				}
			}
		}
	}
	return query
}

// ExtractParams pulls the quiz identity out of an exam URL. The wisdom
// variant carries everything in the query string, which on hash-routed pages
// lives inside the fragment. The fusion variant puts the knowledge id in the
// exam route (/exam/<course>/<unit>/<knowledgeId>/...) and sometimes omits
// recruitAndCourseId, in which case savedRecruitAndCourseID (the persisted
// last-known-good value) fills the gap.
func ExtractParams(rawURL string, savedRecruitAndCourseID string) (domain.ExamParams, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.ExamParams{}, domain.NewInvalidInputError("malformed exam URL")
	}

	query := routeQuery(u)
	params := domain.ExamParams{
		SecretStr: query.Get("secretStr"),
		Timestamp: query.Get("timestamp"),
	}

	if VariantOf(u.Hostname()) == VariantFusion {
		parts := splitPath(routePath(u))
		for i, part := range parts {
			if part == "exam" && i+3 < len(parts) {
				params.KnowledgeID = parts[i+3]
				break
			}
		}
		params.RecruitAndCourseID = query.Get("recruitAndCourseId")
		if params.RecruitAndCourseID == "" {
			params.RecruitAndCourseID = savedRecruitAndCourseID
		}
	} else {
		params.KnowledgeID = query.Get("knowledgeId")
		params.RecruitAndCourseID = query.Get("recruitAndCourseId")
	}

	return params, nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
