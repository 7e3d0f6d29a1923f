package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := JSONLogger(&buf, logrus.InfoLevel)
	logger.WithField("chart_id", "c1").Info("chart published")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "chart published", line["msg"])
	require.Equal(t, "c1", line["chart_id"])
}

func TestConsoleLogger_RespectsLevel(t *testing.T) {
	logger := ConsoleLogger(logrus.WarnLevel)
	require.False(t, logger.IsLevelEnabled(logrus.InfoLevel))
	require.True(t, logger.IsLevelEnabled(logrus.ErrorLevel))
}
