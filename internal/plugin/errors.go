package plugin

import xerrors "github.com/loudmantrade/RealEstatesAntiFraud/internal/errors"

// CodePermanentFailure marks a plugin error that must not be retried:
// the orchestrator routes the listing straight to the dead letter
// queue instead of redelivering it.
const CodePermanentFailure xerrors.Code = "PLUGIN_PERMANENT_FAILURE"

func init() {
	xerrors.Register(CodePermanentFailure, xerrors.Attributes{
		Message:   "plugin reported a permanent failure",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// NewPermanentError wraps cause to tell the host that this failure is
// not transient: redelivering the same listing would fail again, so
// the orchestrator must not spend retry budget on it.
func NewPermanentError(message string, cause error) error {
	return xerrors.Wrap(CodePermanentFailure, cause, message)
}
