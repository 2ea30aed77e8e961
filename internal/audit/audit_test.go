package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihastele/social-space-harry/pkg/log"
)

func capture(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return log.WithLogger(context.Background(), log.NewWithWriter(log.Config{Level: "info"}, &buf)), &buf
}

func TestLog(t *testing.T) {
	ctx, buf := capture(t)

	Log(ctx, ActionAuth, "alice", "websocket authenticated")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionAuth, entry[FieldAction])
	assert.Equal(t, "alice", entry[log.FieldUserID])
}

func TestLogTarget(t *testing.T) {
	ctx, buf := capture(t)

	LogTarget(ctx, ActionSendMessage, "alice", "bob", "", "message sent")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "bob", entry[FieldTargetID])
	assert.NotContains(t, entry, FieldDetail)
}
