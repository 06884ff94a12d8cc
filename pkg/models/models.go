package models

// Chunk is a span of text cut from one source document.
type Chunk struct {
	Source  string `json:"source"`
	Ordinal int    `json:"ordinal"`
	Content string `json:"content"`
}

type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// ComplianceReport is the GDPR / EU AI Act classification for a process description.
type ComplianceReport struct {
	AIUsed       string       `json:"ai_used"`
	GDPRStatus   string       `json:"gdpr_status"`
	GDPRSection  string       `json:"gdpr_section"`
	AIActStatus  string       `json:"ai_act_status"`
	AIActSection string       `json:"ai_act_section"`
	Explanations Explanations `json:"explanations"`
}

type Explanations struct {
	GDPR  string `json:"gdpr"`
	AIAct string `json:"ai_act"`
}

type ValueEstimate struct {
	Score     float64        `json:"score"`
	Breakdown ValueBreakdown `json:"breakdown"`
	Narrative string         `json:"narrative"`
}

type ValueBreakdown struct {
	TimeFactor        float64 `json:"time_factor"`
	FrequencyFactor   float64 `json:"frequency_factor"`
	StakeholderFactor float64 `json:"stakeholder_factor"`
}

type ToolRecommendations struct {
	Recommendations []Recommendation `json:"recommendations"`
}

type Recommendation struct {
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

// Report bundles the three analyses of one process description.
type Report struct {
	Compliance ComplianceReport    `json:"compliance"`
	Value      ValueEstimate       `json:"value"`
	Tools      ToolRecommendations `json:"tools"`
}
