package chat

import "strings"

const (
	CategoryAttendance = "attendance"
	CategoryNews       = "news"
	CategoryGeneral    = "general"
)

var attendanceKeywords = []string{
	"attendance", "absent", "present", "student", "school",
	"class", "roll", "register", "truancy", "tardy",
}

var newsKeywords = []string{
	"news", "headline", "headlines", "current events", "breaking",
}

// Classify routes a question to a data source. Attendance keywords win
// over news keywords when both appear; confidence reflects how many
// distinct keywords matched.
func Classify(question string) (category string, confidence float64) {
	lower := strings.ToLower(question)

	attendanceHits := countMatches(lower, attendanceKeywords)
	newsHits := countMatches(lower, newsKeywords)

	switch {
	case attendanceHits > 0:
		return CategoryAttendance, hitConfidence(attendanceHits)
	case newsHits > 0:
		return CategoryNews, hitConfidence(newsHits)
	default:
		return CategoryGeneral, 0.5
	}
}

func countMatches(lower string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

func hitConfidence(hits int) float64 {
	confidence := 0.6 + 0.1*float64(hits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}
