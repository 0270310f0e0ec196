package backend

// SolveRequest is the JSON body for POST /solve.
type SolveRequest struct {
	Question string `json:"question"`
}

// SolveStep is one reasoning or calculation step of a solution.
type SolveStep struct {
	Type    string `json:"type"` // "reasoning" or "calculation"
	Content string `json:"content"`
	Code    string `json:"code,omitempty"`
}

// SolveStatistics summarises a solution's steps.
type SolveStatistics struct {
	TotalSteps       int `json:"total_steps"`
	ReasoningSteps   int `json:"reasoning_steps"`
	CalculationSteps int `json:"calculation_steps"`
	TimeUsed         any `json:"time_used,omitempty"`
}

// SolveResult is the response of POST /solve.
type SolveResult struct {
	Success    *bool           `json:"success,omitempty"`
	Error      string          `json:"error,omitempty"`
	Answer     string          `json:"answer"`
	Steps      []SolveStep     `json:"steps"`
	Statistics SolveStatistics `json:"statistics"`
}

// GenerateRequest is the JSON body for POST /generate.
type GenerateRequest struct {
	Scenario      string   `json:"task_scenario,omitempty"`
	ProblemType   string   `json:"problem_type,omitempty"`
	Difficulty    string   `json:"difficulty_level,omitempty"`
	TopicKeywords []string `json:"topic_keywords,omitempty"`
	Requirements  string   `json:"requirements,omitempty"`
	Count         int      `json:"batch_count,omitempty"`
}

// GenerateResult is the response of POST /generate.
type GenerateResult struct {
	Success      *bool          `json:"success,omitempty"`
	Error        string         `json:"error,omitempty"`
	Problem      string         `json:"problem"`
	QualityScore float64        `json:"quality_score,omitempty"`
	Evaluation   map[string]any `json:"evaluation,omitempty"`
	Validation   map[string]any `json:"validation,omitempty"`
}

// Statistics is the aggregate usage report of GET /statistics.
type Statistics struct {
	Total          int              `json:"total"`
	SuccessRate    float64          `json:"success_rate"`
	WeakPoints     []string         `json:"weak_points"`
	MasteredPoints []string         `json:"mastered_points"`
	WeeklyData     []map[string]any `json:"weekly_data,omitempty"`
}

// MemoryFilter narrows GET /memory.
type MemoryFilter struct {
	Tag        string
	Difficulty string
}

// MemoryRecord is one remembered attempt.
type MemoryRecord struct {
	Question   string   `json:"question"`
	Success    bool     `json:"success"`
	Tags       []string `json:"tags,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
}

// Memory is the learning-memory report of GET /memory.
type Memory struct {
	Total          int            `json:"total"`
	SuccessRate    float64        `json:"success_rate"`
	WeakPoints     []string       `json:"weak_points"`
	MasteredPoints []string       `json:"mastered_points"`
	Records        []MemoryRecord `json:"records"`
}

// DailyQuestion is the response of GET /daily.
type DailyQuestion struct {
	ID         int      `json:"id,omitempty"`
	Date       string   `json:"date"`
	Question   string   `json:"question"`
	Tags       []string `json:"tags"`
	Difficulty string   `json:"difficulty"`
	Source     string   `json:"source"`
	Strategy   string   `json:"strategy"`
	Answer     string   `json:"answer"`
	Hint       string   `json:"hint"`
}

// DailySubmission is the body of POST /daily/submit.
type DailySubmission struct {
	QuestionID int    `json:"questionId"`
	Answer     string `json:"answer"`
}

// DailyVerdict is the response of POST /daily/submit.
type DailyVerdict struct {
	Success  *bool  `json:"success,omitempty"`
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// PlotExecuteRequest is the body of POST /plot/execute.
type PlotExecuteRequest struct {
	Code string `json:"code"`
}

// PlotImage is the response of POST /plot/execute.
type PlotImage struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Image   string `json:"image"`
}

// PlotGenerateRequest is the body of POST /plot/generate.
type PlotGenerateRequest struct {
	Description string `json:"description"`
}

// PlotCode is the response of POST /plot/generate.
type PlotCode struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code"`
}
