package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// maxOutputBytes — сколько stdout сохраняется в outputs шага.
const maxOutputBytes = 4096

// setOutputPrefix — строка stdout вида "::set-output key=value" становится output.
const setOutputPrefix = "::set-output "

// Command — команда для CommandRunner.
type Command struct {
	Script string
	Dir    string
	Env    []string
}

// CommandResult — результат выполнения команды.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandRunner — внешний исполнитель команд тулчейна.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}

// ExecRunner запускает команды через os/exec.
type ExecRunner struct {
	// Shell — интерпретатор. По умолчанию "sh".
	Shell string
}

// Run выполняет Script через "<shell> -c".
// Ненулевой код выхода не является ошибкой: он возвращается в CommandResult.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*CommandResult, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", c.Script)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, err
	}

	return result, nil
}

// ShellAction — действие "shell".
//
// Параметры:
//   - command (обязательный) — скрипт
//   - dir — рабочая директория относительно workspace
//
// Outputs: stdout (обрезанный), exit_code и все строки
// "::set-output key=value" из stdout.
type ShellAction struct {
	Runner CommandRunner
}

// NewShellAction создаёт действие с указанным CommandRunner.
// nil означает ExecRunner.
func NewShellAction(runner CommandRunner) *ShellAction {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &ShellAction{Runner: runner}
}

// Name возвращает имя действия.
func (a *ShellAction) Name() string { return "shell" }

// Execute выполняет команду.
func (a *ShellAction) Execute(ctx context.Context, req *Request) (*Result, error) {
	script, err := req.RequireParam("command")
	if err != nil {
		return nil, err
	}

	dir := req.Workspace.Dir
	if d := req.Param("dir", ""); d != "" {
		dir = req.Workspace.Resolve(d)
	}

	res, err := a.Runner.Run(ctx, Command{
		Script: script,
		Dir:    dir,
		Env: []string{
			"SHIPYARD_RUN_ID=" + req.RunID.String(),
			"SHIPYARD_JOB=" + req.Job,
			"SHIPYARD_LABEL=" + req.Label,
			"SHIPYARD_REF=" + req.Trigger.Ref,
			"SHIPYARD_EVENT=" + string(req.Trigger.Event),
		},
	})
	if err != nil {
		return nil, err
	}

	outputs := parseSetOutputs(res.Stdout)
	outputs["stdout"] = truncate(strings.TrimSpace(res.Stdout), maxOutputBytes)
	outputs["exit_code"] = strconv.Itoa(res.ExitCode)

	result := &Result{ExitCode: res.ExitCode, Outputs: outputs}
	if res.ExitCode != 0 {
		result.Error = lastLine(res.Stderr)
	}
	return result, nil
}

// parseSetOutputs извлекает outputs из строк "::set-output key=value".
func parseSetOutputs(stdout string) map[string]string {
	outputs := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, setOutputPrefix) {
			continue
		}
		kv := strings.TrimPrefix(line, setOutputPrefix)
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		outputs[key] = value
	}
	return outputs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
