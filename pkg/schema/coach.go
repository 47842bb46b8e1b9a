package schema

// CoachRoutes is the next-session plan produced from one coaching transcript.
type CoachRoutes struct {
	Meta   CoachMeta    `json:"meta"`
	Routes []CoachRoute `json:"routes"`
}

type CoachMeta struct {
	RouteCount int      `json:"routeCount"`
	DomainUsed *string  `json:"domainUsed"`
	TopThemes  []string `json:"topThemes"`
	Notes      []string `json:"notes"`
}

type CoachRoute struct {
	ID                 string         `json:"id" jsonschema:"enum=challenge,enum=empathy,enum=structured"`
	Name               string         `json:"name"`
	Intensity          string         `json:"intensity" jsonschema:"enum=high,enum=medium,enum=low"`
	ToneStyle          ToneStyle      `json:"toneStyle"`
	SessionGoal        string         `json:"sessionGoal"`
	Agenda             []string       `json:"agenda"`
	KeyQuestions       KeyQuestions   `json:"keyQuestions"`
	MicroInterventions []string       `json:"microInterventions"`
	ActionOptions      []ActionOption `json:"actionOptions"`
	RisksAndBoundaries []string       `json:"risksAndBoundaries"`
	Evidence           []Evidence     `json:"evidence"`
}

type ToneStyle struct {
	Domain        *string  `json:"domain"`
	Principles    []string `json:"principles"`
	SamplePhrases []string `json:"samplePhrases"`
}

type KeyQuestions struct {
	Clarify   []string `json:"clarify"`
	Challenge []string `json:"challenge"`
	Action    []string `json:"action"`
}

type ActionOption struct {
	Action    string `json:"action"`
	Metric    string `json:"metric"`
	Deadline  string `json:"deadline"`
	FirstStep string `json:"firstStep"`
}

type Evidence struct {
	Quote        string `json:"quote"`
	WhyItMatters string `json:"whyItMatters"`
	LocationHint string `json:"locationHint"`
}
