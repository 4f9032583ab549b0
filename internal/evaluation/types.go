package evaluation

// SentenceScore holds the metric score for one corpus sentence.
type SentenceScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Summary aggregates sentence-level scores across a corpus.
type Summary struct {
	Metric    string          `json:"metric"`
	Sentences int             `json:"sentences"`
	Mean      float64         `json:"mean"`
	Median    float64         `json:"median"`
	StdDev    float64         `json:"std_dev"`
	Min       float64         `json:"min"`
	Max       float64         `json:"max"`
	Scores    []SentenceScore `json:"scores,omitempty"`
}
