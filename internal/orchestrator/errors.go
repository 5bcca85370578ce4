package orchestrator

import xerrors "github.com/loudmantrade/RealEstatesAntiFraud/internal/errors"

const (
	CodePipelineValidation xerrors.Code = "PIPELINE_VALIDATION_FAILED"
	CodePipelineStep       xerrors.Code = "PIPELINE_STEP_FAILED"
	CodePipelineScoring    xerrors.Code = "PIPELINE_SCORING_FAILED"
	CodePipelinePublish    xerrors.Code = "PIPELINE_PUBLISH_FAILED"
)

func init() {
	xerrors.Register(CodePipelineValidation, xerrors.Attributes{
		Message:   "listing failed validation",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePipelineStep, xerrors.Attributes{
		Message:   "processing plugin failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodePipelineScoring, xerrors.Attributes{
		Message:   "risk scoring failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodePipelinePublish, xerrors.Attributes{
		Message:   "failed to publish processed listing",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}
