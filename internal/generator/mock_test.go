package generator

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hbai-chat-go/internal/model"
	"hbai-chat-go/pkg/textproc"
)

func newTestMock(delay time.Duration) *MockModelManager {
	return NewMockModelManager(cpuConfig(), delay, rand.New(rand.NewPCG(7, 11)))
}

func TestMockGenerate_KoreanInput(t *testing.T) {
	m := newTestMock(0)

	for i := 0; i < 20; i++ {
		out, err := m.Generate(context.Background(), "안녕하세요", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, out)
		assert.Equal(t, textproc.Korean, textproc.DetectLanguage(stripQuoted(out)))
		assert.Equal(t, out, textproc.Postprocess(out, textproc.Korean))
	}
}

func TestMockGenerate_EnglishInput(t *testing.T) {
	m := newTestMock(0)

	for i := 0; i < 20; i++ {
		out, err := m.Generate(context.Background(), "Hello", nil)
		require.NoError(t, err)
		assert.Contains(t, englishOutputs("Hello"), out)
	}
}

func TestMockGenerate_EmptyInputNeverFails(t *testing.T) {
	m := newTestMock(0)

	out, err := m.Generate(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Contains(t, englishOutputs(mockFallbackInput), out)
}

func TestMockGenerate_BoundedDelay(t *testing.T) {
	m := NewMockModelManager(cpuConfig(), time.Hour, nil)
	assert.Equal(t, MaxMockDelay, m.delay)

	m = newTestMock(30 * time.Millisecond)
	start := time.Now()
	_, err := m.Generate(context.Background(), "Hello", nil)
	require.NoError(t, err)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, MaxMockDelay)
}

func TestMockGenerate_CancelledContextStillAnswers(t *testing.T) {
	m := newTestMock(MaxMockDelay)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	out, err := m.Generate(ctx, "안녕", model.ChatHistory{model.NewUserTurn("x", time.Now())})
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Less(t, time.Since(start), MaxMockDelay)
}

func TestMockInfo(t *testing.T) {
	m := newTestMock(0)
	info := m.Info()
	assert.Equal(t, KindMock, info.Kind)
	assert.True(t, info.Loaded)
	assert.Equal(t, 10, info.MaxContextTurns)
	m.Unload()
}

func englishOutputs(message string) []string {
	out := make([]string, 0, len(englishMockResponses))
	for _, r := range englishMockResponses {
		out = append(out, textproc.Postprocess(strings.ReplaceAll(r, "{message}", message), textproc.English))
	}
	return out
}

// stripQuoted 去掉回复中引用的用户原文，只保留模板部分。
func stripQuoted(s string) string {
	var out []rune
	quoted := false
	for _, r := range s {
		if r == '\'' {
			quoted = !quoted
			continue
		}
		if !quoted {
			out = append(out, r)
		}
	}
	return string(out)
}
