package executor_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizon-installer/hscript/executor"
)

func TestBasicExecution(t *testing.T) {
	cmd := executor.New("echo", "hello", "world")
	result, err := cmd.Execute(context.Background())
	require.NoError(t, err)

	assert.Contains(t, result.Stdout, "hello world")
	assert.Equal(t, 0, result.ExitCode)
}

func TestCombinedOutput(t *testing.T) {
	cmd := executor.New("sh", "-c", "echo stdout && echo stderr >&2")
	result, err := cmd.Execute(
		context.Background(),
		executor.WithCapture(false, false, true),
	)
	require.NoError(t, err)

	assert.Contains(t, result.Combined, "stdout")
	assert.Contains(t, result.Combined, "stderr")
}

func TestCommandError(t *testing.T) {
	cmd := executor.New("sh", "-c", "echo 'no such volume group' >&2; exit 5")
	result, err := cmd.Execute(context.Background())
	require.Error(t, err)

	var cerr *executor.CommandError
	require.True(t, errors.As(err, &cerr), "error should be a CommandError")
	assert.Equal(t, 5, cerr.ExitCode)
	assert.Equal(t, 5, result.ExitCode)
	assert.Contains(t, err.Error(), "no such volume group")
	assert.Equal(t, "sh", cerr.Argv[0])
}

func TestRetryStopsOnCondition(t *testing.T) {
	attempts := 0
	cmd := executor.New("false")
	_, err := cmd.Execute(
		context.Background(),
		executor.WithRetry(3, time.Millisecond),
		executor.WithRetryCondition(func(error) bool {
			attempts++
			return attempts < 2
		}),
	)

	require.Error(t, err)
	assert.Equal(t, 2, attempts, "retry condition should be consulted until it refuses")
}

func TestWithInput(t *testing.T) {
	cmd := executor.New("cat")
	result, err := cmd.Execute(context.Background(), executor.WithInput("root:$6$salt$hash\n"))
	require.NoError(t, err)

	assert.Equal(t, "root:$6$salt$hash\n", result.Stdout)
}

func TestWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	cmd := executor.New("pwd")
	result, err := cmd.Execute(context.Background(), executor.WithWorkingDir(dir))
	require.NoError(t, err)

	assert.Contains(t, strings.TrimSpace(result.Stdout), dir)
}

func TestEnvironmentVariables(t *testing.T) {
	cmd := executor.New("sh", "-c", "echo $CUSTOM_VAR")
	result, err := cmd.Execute(context.Background(), executor.WithEnvVar("CUSTOM_VAR", "test_value"))
	require.NoError(t, err)

	assert.Contains(t, result.Stdout, "test_value")
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cmd := executor.New("sleep", "1")
	_, err := cmd.Execute(ctx)
	assert.Error(t, err, "expected error due to context cancellation")
}

func TestLocalRunner(t *testing.T) {
	r := executor.NewLocal(nil)

	result, err := r.Run(context.Background(), []string{"echo", "partprobe"})
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "partprobe")

	_, err = r.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestSimulatorPrintsCommands(t *testing.T) {
	var buf bytes.Buffer
	r := executor.NewSimulator(&buf)

	_, err := r.Run(context.Background(), []string{"mkfs.ext4", "-F", "/dev/sda2"})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), []string{"usermod", "-c", "Jane Doe", "jane"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "mkfs.ext4 -F /dev/sda2", strings.ReplaceAll(lines[0], "'", ""))
	assert.Contains(t, lines[1], "'Jane Doe'")
}

func TestFormatCommandInput(t *testing.T) {
	line := executor.FormatCommand(
		[]string{"chpasswd", "-e"},
		executor.WithInput("root:$6$x"),
		executor.WithEnvVar("LANG", "C"),
	)

	assert.True(t, strings.HasPrefix(line, "printf '%s\\n' "), line)
	assert.Contains(t, line, "'root:$6$x'")
	assert.Contains(t, line, " | LANG=")
	assert.True(t, strings.HasSuffix(strings.ReplaceAll(line, "'", ""), "chpasswd -e"))
}

func TestRecorder(t *testing.T) {
	r := executor.NewRecorder()
	r.Respond("pvs", "  /dev/sda2\n", nil)
	r.Respond("vgs --noheadings", "", errors.New("not found"))

	res, err := r.Run(context.Background(), []string{"pvs", "--noheadings", "/dev/sda2"})
	require.NoError(t, err)
	assert.Equal(t, "  /dev/sda2\n", res.Stdout)

	res, err = r.Run(context.Background(), []string{"vgs", "--noheadings", "sys"})
	require.Error(t, err)
	assert.Equal(t, 1, res.ExitCode)

	_, err = r.Run(context.Background(), []string{"lvcreate", "-n", "root"}, executor.WithInput("x"))
	require.NoError(t, err)

	assert.Equal(t, []string{"pvs --noheadings /dev/sda2", "vgs --noheadings sys", "lvcreate -n root"}, r.Lines())
	call, ok := r.Find("lvcreate")
	require.True(t, ok)
	assert.Equal(t, "x", call.Options.Input)
}

func ExampleNew() {
	cmd := executor.New("echo", "Hello, World!")
	result, err := cmd.Execute(context.Background())
	if err != nil {
		return
	}
	_ = result.Stdout
}
