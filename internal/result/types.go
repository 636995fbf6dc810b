package result

// Names of the statistic blocks reported by the quality-evaluation stage.
const (
	BaselineBlock = "Baseline error statistics"
	AngularBlock  = "Angular error statistics"
)

// BlockSize is the number of metrics every statistic block carries.
const BlockSize = 4

// StatisticBlock maps a metric name (min, max, mean, median) to its value.
type StatisticBlock map[string]float64

// Timings maps a stage name to its elapsed wall-clock seconds.
type Timings map[string]float64

// Fields are declared in JSON key order so the encoded document is sorted.
type Dataset struct {
	Failure    *Failure                  `json:"failure,omitempty"`
	Statistics map[string]StatisticBlock `json:"statistics,omitempty"`
	Timings    Timings                   `json:"timings"`
}

type Failure struct {
	ExitCode int    `json:"exit_code,omitempty"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Stage    string `json:"stage,omitempty"`
}

// Failure kinds.
const (
	FailureStage = "stage"
	FailureParse = "parse"
	FailureOther = "other"
)
