package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCompletion(t *testing.T) {
	CompletionsTotal.Reset()
	CompletionDuration.Reset()

	RecordCompletion("moonshot-v1-8k", OutcomeSuccess, 1.5)
	RecordCompletion("moonshot-v1-8k", OutcomeRemoteError, 0.2)

	count := testutil.ToFloat64(CompletionsTotal.WithLabelValues("moonshot-v1-8k", OutcomeSuccess))
	if count != 1 {
		t.Errorf("CompletionsTotal(success) = %v, want 1", count)
	}

	count = testutil.ToFloat64(CompletionsTotal.WithLabelValues("moonshot-v1-8k", OutcomeRemoteError))
	if count != 1 {
		t.Errorf("CompletionsTotal(remote_error) = %v, want 1", count)
	}
}

func TestRecordTokens(t *testing.T) {
	TokensTotal.Reset()

	RecordTokens("moonshot-v1-8k", 100, 50)

	prompt := testutil.ToFloat64(TokensTotal.WithLabelValues("moonshot-v1-8k", "prompt"))
	if prompt != 100 {
		t.Errorf("prompt tokens = %v, want 100", prompt)
	}

	completion := testutil.ToFloat64(TokensTotal.WithLabelValues("moonshot-v1-8k", "completion"))
	if completion != 50 {
		t.Errorf("completion tokens = %v, want 50", completion)
	}
}

func TestRecordDispatch(t *testing.T) {
	DispatchTotal.Reset()

	RecordDispatch(PathCommand)
	RecordDispatch(PathCommand)
	RecordDispatch(PathIgnored)

	if got := testutil.ToFloat64(DispatchTotal.WithLabelValues(PathCommand)); got != 2 {
		t.Errorf("DispatchTotal(command) = %v, want 2", got)
	}
	if got := testutil.ToFloat64(DispatchTotal.WithLabelValues(PathIgnored)); got != 1 {
		t.Errorf("DispatchTotal(ignored) = %v, want 1", got)
	}
}

func TestRecordRender(t *testing.T) {
	RendersTotal.Reset()

	RecordRender(true, 0.8)
	RecordRender(false, 0.1)

	if got := testutil.ToFloat64(RendersTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("RendersTotal(success) = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RendersTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("RendersTotal(error) = %v, want 1", got)
	}
}
