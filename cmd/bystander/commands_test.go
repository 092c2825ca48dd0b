package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"

	"github.com/xraph/bystander"
)

// U4 is inactive, U5 is outside C1 and U1 asks, so "<!subteam^S1> <@U6>"
// resolves to U2, U3 and U6.
const directoryYAML = `
groups:
  S1: [U1, U2, U3, U4, U5]
channels:
  C1: [U1, U2, U3, U4, U6]
inactive: [U4]
`

func writeDirectory(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.yaml")
	if err := os.WriteFile(path, []byte(directoryYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs one CLI invocation on a fresh command tree and returns what
// it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(viper.New())
	var out, logs bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&logs)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return v
}

type jobView struct {
	RequestID string `json:"request_id"`
	State     string `json:"state"`
	Queue     string `json:"queue"`
}

func TestCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := writeDirectory(t)
	global := []string{"--redis-addr", mr.Addr(), "--directory", dir, "--json", "--log-level", "warn"}

	// Each invocation opens its own runtime; Redis carries the request
	// from one step to the next.
	var (
		requestID string
		holders   []string
	)
	steps := []struct {
		name  string
		args  func() []string
		err   error
		check func(t *testing.T, out string)
	}{
		{
			name: "create",
			args: func() []string {
				return []string{"create", "--requester", "U1", "--channel", "C1", "<!subteam^S1> <@U6> water the plants"}
			},
			check: func(t *testing.T, out string) {
				res := decode[resultView](t, out)
				if res.Outcome != "started" || res.Request == nil {
					t.Fatalf("result = %+v", res)
				}
				got := slices.Clone(res.Request.Candidates)
				slices.Sort(got)
				if !slices.Equal(got, []string{"U2", "U3", "U6"}) {
					t.Fatalf("candidates = %v", res.Request.Candidates)
				}
				if res.Request.Text != "water the plants" || res.Holder != res.Request.Candidates[0] {
					t.Fatalf("request = %+v, holder %q", res.Request, res.Holder)
				}
				requestID, holders = res.RequestID, []string{res.Holder}
			},
		},
		{
			name: "show",
			args: func() []string { return []string{"show", requestID} },
			check: func(t *testing.T, out string) {
				v := decode[requestView](t, out)
				if v.ID != requestID || v.Current != holders[0] || len(v.Rejected) != 0 {
					t.Fatalf("view = %+v", v)
				}
			},
		},
		{
			name: "jobs after create",
			args: func() []string { return []string{"jobs", "--state", "pending"} },
			check: func(t *testing.T, out string) {
				jobs := decode[[]jobView](t, out)
				if len(jobs) != 1 || jobs[0].RequestID != requestID || jobs[0].Queue != bystander.DefaultQueue {
					t.Fatalf("jobs = %+v", jobs)
				}
			},
		},
		{
			name: "holder rejects",
			args: func() []string { return []string{"respond", requestID, "reject", "--user", holders[0], "--channel", "C1"} },
			check: func(t *testing.T, out string) {
				res := decode[resultView](t, out)
				if res.Outcome != "advanced" || res.Holder == "" || res.Holder == holders[0] {
					t.Fatalf("result = %+v", res)
				}
				holders = append(holders, res.Holder)
			},
		},
		{
			name: "show after reject",
			args: func() []string { return []string{"show", requestID} },
			check: func(t *testing.T, out string) {
				v := decode[requestView](t, out)
				if v.Current != holders[1] || !slices.Equal(v.Rejected, holders[:1]) {
					t.Fatalf("view = %+v", v)
				}
			},
		},
		{
			name: "jobs after reject",
			args: func() []string { return []string{"jobs"} },
			check: func(t *testing.T, out string) {
				if jobs := decode[[]jobView](t, out); len(jobs) != 2 {
					t.Fatalf("pending jobs = %+v, want one per prompt", jobs)
				}
			},
		},
		{
			name: "holder accepts",
			args: func() []string { return []string{"respond", requestID, "accept", "--user", holders[1], "--channel", "C1"} },
			check: func(t *testing.T, out string) {
				if res := decode[resultView](t, out); res.Outcome != "accepted" || res.Holder != holders[1] {
					t.Fatalf("result = %+v", res)
				}
			},
		},
		{
			name: "show after accept",
			args: func() []string { return []string{"show", requestID} },
			err:  bystander.ErrRequestNotFound,
		},
		{
			name: "late answer",
			args: func() []string { return []string{"respond", requestID, "reject", "--user", "U6"} },
			check: func(t *testing.T, out string) {
				if res := decode[resultView](t, out); res.Outcome != "expired" {
					t.Fatalf("result = %+v", res)
				}
			},
		},
		{
			name: "unknown action",
			args: func() []string { return []string{"respond", requestID, "maybe", "--user", "U6"} },
			err:  bystander.ErrInvalidAction,
		},
	}

	for _, step := range steps {
		if !t.Run(step.name, func(t *testing.T) {
			out, err := execute(t, append(step.args(), global...)...)
			if step.err != nil {
				if !errors.Is(err, step.err) {
					t.Fatalf("err = %v, want %v", err, step.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			step.check(t, out)
		}) {
			return
		}
	}
}

func TestCommandsInMemory(t *testing.T) {
	dir := writeDirectory(t)

	out, err := execute(t, "create", "--requester", "U1", "--channel", "C1", "--directory", dir, "--json",
		"<@U2> <@U3> fix the build")
	if err != nil {
		t.Fatal(err)
	}
	if res := decode[resultView](t, out); res.Outcome != "started" || len(res.Request.Candidates) != 2 {
		t.Fatalf("result = %+v", res)
	}

	// A fresh in-memory store knows nothing about earlier runs.
	if _, err := execute(t, "show", "req_01h455vb4pex5vsknk084sn02q"); !errors.Is(err, bystander.ErrRequestNotFound) {
		t.Fatalf("show err = %v", err)
	}

	out, err = execute(t, "jobs", "--state", "completed", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("jobs = %q, want an empty list", out)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"create without directory", []string{"create", "--requester", "U1", "--channel", "C1", "<@U2> x"}, errNoDirectory.Error()},
		{"unknown job state", []string{"jobs", "--state", "sleeping"}, `unknown job state "sleeping"`},
		{"bad log format", []string{"jobs", "--log-format", "xml"}, `unknown log format "xml"`},
		{"respond needs user", []string{"respond", "req_x", "accept"}, `required flag(s) "user" not set`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}
