package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "TEST : ", 0), &core.Config{Env: "TEST", TestMode: true})
	logger.Enable(false)

	logger.Warn("meeting metadata unavailable", errors.New("502 bad gateway"), core.Fields{"session_id": 7})
	out := buf.String()
	assert.Contains(t, out, "TEST : WARN: meeting metadata unavailable")
	assert.Contains(t, out, "502 bad gateway")
	assert.Contains(t, out, "session_id:7")
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := RollbarLogger{}
	err := errors.New("boom")
	args := logger.prepare("msg", []interface{}{err, core.Fields{"run_id": "x"}})

	assert.Equal(t, "msg", args[0])
	assert.Equal(t, err, args[1])
	assert.Equal(t, map[string]interface{}{"run_id": "x"}, args[2])
}
