package runner

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Shipyard/internal/domain"
)

// fakeCommands записывает команды и возвращает заданный результат.
type fakeCommands struct {
	got    []Command
	result *CommandResult
}

func (f *fakeCommands) Run(ctx context.Context, cmd Command) (*CommandResult, error) {
	f.got = append(f.got, cmd)
	return f.result, nil
}

func TestShellAction_FakeRunner(t *testing.T) {
	fake := &fakeCommands{result: &CommandResult{
		Stdout: "building\n::set-output version=1.2.3\n::set-output bad\n",
	}}
	action := NewShellAction(fake)

	req := &Request{
		RunID:     uuid.New(),
		Job:       "build",
		Label:     "linux",
		Trigger:   domain.Trigger{Event: domain.EventTag, Ref: "refs/tags/v1.2.3"},
		Params:    map[string]string{"command": "make", "dir": "src"},
		Workspace: NewWorkspace("/work"),
	}

	res, err := action.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Outputs["version"] != "1.2.3" {
		t.Errorf("set-output not parsed: %v", res.Outputs)
	}
	if _, ok := res.Outputs["bad"]; ok {
		t.Error("malformed set-output line should be ignored")
	}

	cmd := fake.got[0]
	if cmd.Script != "make" || cmd.Dir != "/work/src" {
		t.Errorf("unexpected command: %+v", cmd)
	}
	env := strings.Join(cmd.Env, " ")
	if !strings.Contains(env, "SHIPYARD_LABEL=linux") || !strings.Contains(env, "SHIPYARD_REF=refs/tags/v1.2.3") {
		t.Errorf("missing env: %s", env)
	}
}

func TestShellAction_MissingCommand(t *testing.T) {
	action := NewShellAction(&fakeCommands{})
	_, err := action.Execute(context.Background(), &Request{Params: map[string]string{}, Workspace: NewWorkspace("")})
	if err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Command{Script: "echo hello; echo oops >&2; exit 3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" || strings.TrimSpace(res.Stderr) != "oops" {
		t.Errorf("unexpected output: %q / %q", res.Stdout, res.Stderr)
	}

	res, err = r.Run(context.Background(), Command{Script: "echo $SHIPYARD_TEST", Env: []string{"SHIPYARD_TEST=42"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "42" {
		t.Errorf("env not passed: %q", res.Stdout)
	}
}
