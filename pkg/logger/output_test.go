package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputChannel_AppendIsVerbatim(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputChannel("rsc rsync", &buf)

	out.Append([]byte("partial"))
	out.Append([]byte(" line\nnext"))
	out.AppendLine("[42] done")

	assert.Equal(t, "partial line\nnext[42] done\n", buf.String())
	assert.Equal(t, "rsc rsync", out.Name())
}

func TestOutputChannel_ConcurrentLinesDoNotTear(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputChannel("test", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.AppendLine("abcdefghij")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		assert.Equal(t, "abcdefghij", line)
	}
}

func TestOpenOutputChannel_WritesFileWithBanners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "output.log")

	out, err := OpenOutputChannel("rsc rsync", path)
	require.NoError(t, err)
	out.AppendLine("Run On Save enabled.")
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "=== rsc rsync started:")
	assert.Contains(t, content, "Run On Save enabled.\n")
	assert.Contains(t, content, "=== rsc rsync ended:")
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, LevelFor(true))
	assert.Equal(t, logrus.InfoLevel, LevelFor(false))
}
