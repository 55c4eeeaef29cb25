package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/pkg/classify"
)

func TestClassify_PlatformPriors(t *testing.T) {
	tests := []struct {
		name       string
		platform   string
		wantType   models.DocumentType
		confidence float64
	}{
		{"crimemapping is certain", "crimemapping", models.TypeCrimemapping, 1.0},
		{"citizenrims short-circuits", "citizenrims", models.TypeIncidentReport, 0.9},
		{"nixle is an alert platform", "nixle", models.TypeCommunityAlert, 0.9},
		{"rave aliases nixle", "rave", models.TypeCommunityAlert, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &models.Document{
				PlatformType: tt.platform,
				SourceURL:    "https://example.gov/arrest/log", // must not override a strong prior
				RawText:      "arrested booking bail",
			}
			result := classify.Classify(doc)
			assert.Equal(t, tt.wantType, result.DocumentType)
			assert.InDelta(t, tt.confidence, result.Confidence, 0.001)
		})
	}
}

func TestClassify_WeakPriorRefinedByURL(t *testing.T) {
	doc := &models.Document{
		PlatformType: "civicplus",
		SourceURL:    "https://cityofexample.gov/police/arrest-log/2024",
		RawText:      "Weekly summary",
	}

	result := classify.Classify(doc)

	assert.Equal(t, models.TypeArrestLog, result.DocumentType)
	assert.Greater(t, result.Confidence, 0.7)
}

func TestClassify_AgreeingSignalsStackConfidence(t *testing.T) {
	doc := &models.Document{
		PlatformType: "civicplus",
		SourceURL:    "https://cityofexample.gov/news/press-release-42",
		Title:        "For Immediate Release",
		RawText:      "Media contact: Public Information Officer Jones",
	}

	result := classify.Classify(doc)

	assert.Equal(t, models.TypePressRelease, result.DocumentType)
	// prior 0.7 + url 0.2 + keywords
	assert.GreaterOrEqual(t, result.Confidence, 0.9)
}

func TestClassify_KeywordsWithoutPlatform(t *testing.T) {
	doc := &models.Document{
		SourceURL: "https://example.gov/page",
		Title:     "Subject taken into custody",
		RawText:   "The suspect was arrested and booked into county jail. Bail was set at arraignment.",
	}

	result := classify.Classify(doc)

	assert.Equal(t, models.TypeArrestLog, result.DocumentType)
	assert.Greater(t, result.Confidence, 0.5)
}

func TestClassify_LegacyHintNormalized(t *testing.T) {
	doc := &models.Document{
		DocumentType: "activity_feed",
		SourceURL:    "https://example.gov/x",
		RawText:      "nothing indicative here",
	}

	result := classify.Classify(doc)

	assert.Equal(t, models.TypeDailyActivityLog, result.DocumentType)
	assert.InDelta(t, 0.55, result.Confidence, 0.001)
}

func TestClassify_AmbiguousFallsBack(t *testing.T) {
	doc := &models.Document{
		SourceURL: "https://example.gov/x",
		RawText:   "nothing indicative here",
	}

	result := classify.Classify(doc)

	assert.Equal(t, models.TypePressRelease, result.DocumentType)
	assert.InDelta(t, 0.4, result.Confidence, 0.001)
	assert.True(t, result.DocumentType.Valid())
}

func TestClassify_Deterministic(t *testing.T) {
	doc := &models.Document{
		PlatformType: "rss",
		SourceURL:    "https://example.gov/feed/incident/123",
		RawText:      "Case number 23-1234. Occurred at Main St. Victim reported a theft.",
	}

	first := classify.Classify(doc)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, classify.Classify(doc))
	}
}
