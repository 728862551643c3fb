package config

// Schema namespaces for the warehouse.
const (
	StagingSchema   = "staging"
	WarehouseSchema = "banking_dw"
	AuditSchema     = "audit"
)

// SentinelKey is the fixed surrogate key of the UNKNOWN row every dimension
// carries. Fact rows fall back to it when a natural key cannot be resolved.
const SentinelKey = 1

// DateFormats lists accepted transaction date layouts, tried in order.
var DateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
}

// Customer age plausibility bounds. Values outside are soft-cleaned to null,
// never a rejection.
const (
	MinCustomerAge = 0
	MaxCustomerAge = 120
)

// Pipeline stage identifiers, in execution order. StageAll selects the
// whole sequence.
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageLoad      = "load"
	StageQuality   = "quality"
	StageAll       = "all"
)

// Stages lists the runnable stages in execution order.
var Stages = []string{StageExtract, StageTransform, StageLoad, StageQuality}

// PipelineName identifies this pipeline in the execution log.
const PipelineName = "banking_etl_pipeline"
