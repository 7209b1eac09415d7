package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/stagehand/internal/runctx"
)

const (
	defaultShell = "/bin/sh"

	// shellWaitDelay — сколько ждать закрытия stdout/stderr после отмены.
	shellWaitDelay = 2 * time.Second

	// maxShellOutput — ограничение на объём stdout/stderr в output.
	maxShellOutput = 1024 * 1024
)

var shellSchema = Schema{
	"script": {Type: ParamTypeString, Required: true, Description: "script passed to the shell with -c"},
	"shell":  {Type: ParamTypeString, Default: defaultShell, Description: "shell binary"},
	"dir":    {Type: ParamTypeString, Description: "working directory"},
	"env":    {Type: ParamTypeObject, Description: "extra environment variables"},
	"export": {Type: ParamTypeString, Description: "context variable to store trimmed stdout"},
}

// ShellStep — шаг запуска скрипта.
//
// Параметры:
//
//	{
//	    "script": "git rev-parse --short HEAD",
//	    "dir": "/src",
//	    "env": {"GOFLAGS": "-mod=readonly"},
//	    "export": "commit"
//	}
//
// Output:
//
//	{"exit_code": 0, "stdout": "...", "stderr": "..."}
//
// Если задан export, stdout без пробелов по краям записывается
// в переменную контекста для потомков стадии.
// Переменные контекста передаются скрипту как STAGEHAND_VAR_<NAME>.
type ShellStep struct{}

// NewShellStep создаёт новый ShellStep.
func NewShellStep() *ShellStep {
	return &ShellStep{}
}

// Invoke запускает скрипт.
func (s *ShellStep) Invoke(ctx context.Context, params map[string]any, rc *runctx.Context) (*Result, error) {
	script := ParamString(params, "script")
	shell := ParamString(params, "shell")
	if shell == "" {
		shell = defaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", script)
	cmd.Dir = ParamString(params, "dir")
	cmd.Env = s.buildEnv(ParamMapString(params, "env"), rc)
	cmd.WaitDelay = shellWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedBuffer{buf: &stdout, limit: maxShellOutput}
	cmd.Stderr = &limitedBuffer{buf: &stderr, limit: maxShellOutput}

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("start %s: %w", shell, err)
		}
		exitCode = exitErr.ExitCode()
	}

	output := map[string]any{
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}

	if exitCode != 0 {
		return nil, &ExitError{Code: exitCode, Stderr: strings.TrimSpace(stderr.String())}
	}

	result := NewResult(output)
	if name := ParamString(params, "export"); name != "" {
		result.Delta = runctx.Delta{name: strings.TrimSpace(stdout.String())}
	}
	return result, nil
}

// buildEnv собирает окружение процесса: текущее окружение,
// переменные контекста и явно заданные env.
func (s *ShellStep) buildEnv(extra map[string]string, rc *runctx.Context) []string {
	env := os.Environ()

	if rc != nil {
		vars := rc.Vars()
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, fmt.Sprintf("STAGEHAND_VAR_%s=%v", strings.ToUpper(k), vars[k]))
		}
		env = append(env,
			"STAGEHAND_BRANCH="+rc.Branch(),
			"STAGEHAND_RUN_ID="+rc.RunID().String(),
		)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}

	return env
}

// limitedBuffer отбрасывает всё, что превышает limit.
type limitedBuffer struct {
	buf   *bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}
