package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/resolution-cli/internal/model"
	"github.com/sells-group/resolution-cli/pkg/oracle"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want ErrorKind
	}{
		{&oracle.AuthError{}, KindAuth},
		{&oracle.GatewayError{Code: 9}, KindGateway},
		{&oracle.TransportError{StatusCode: 500, Err: errors.New("x")}, KindTransport},
		{errors.New("unclassified"), KindTransport},
	}
	for _, tt := range tests {
		se := classify(model.StageAudit, tt.err)
		assert.Equal(t, tt.want, se.Kind, "%v", tt.err)
		assert.Equal(t, model.StageAudit, se.Stage)
		assert.ErrorIs(t, se, tt.err)
	}
}

func TestStageError_Message(t *testing.T) {
	t.Parallel()

	se := stepFailure(model.StageJudge, []string{"model timeout", "retry later"})
	assert.Equal(t, "pipeline: judge stage failed (step): model timeout [model timeout; retry later]", se.Error())

	empty := stepFailure(model.StageCollect, nil)
	assert.Equal(t, "pipeline: collect stage failed (step): step reported failure", empty.Error())
}
