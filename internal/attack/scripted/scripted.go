// Package scripted turns the task sets declared in an attack file into
// runnable attack.TaskSets.
//
// Every request path, header value and body may reference {{name}}
// variables. Variables come from the file's variables block, from the
// built-ins userId and taskSet, and from values extracted out of earlier
// responses by the same user.
package scripted

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wesleyorama2/drove/internal/attack"
	"github.com/wesleyorama2/drove/internal/config"
	"github.com/wesleyorama2/drove/internal/transport"
)

// varsKey is the user data key holding a user's variables.
const varsKey = "scripted.vars"

// Build converts cfg.TaskSets into task sets. It fails on an unknown
// policy or a response schema that does not compile.
func Build(cfg *config.AttackConfig) ([]*attack.TaskSet, error) {
	sets := make([]*attack.TaskSet, 0, len(cfg.TaskSets))
	for i := range cfg.TaskSets {
		ts, err := buildTaskSet(&cfg.TaskSets[i], cfg.Variables)
		if err != nil {
			return nil, fmt.Errorf("taskSets[%d]: %w", i, err)
		}
		sets = append(sets, ts)
	}
	return sets, nil
}

func buildTaskSet(tc *config.TaskSetConfig, globals map[string]string) (*attack.TaskSet, error) {
	policy, err := attack.ParsePolicy(tc.Policy)
	if err != nil {
		return nil, err
	}

	ts := attack.NewTaskSet(tc.Name).
		SetWeight(weightOf(tc.Weight)).
		SetPolicy(policy).
		SetHost(config.ResolveVariables(tc.Host, globals))
	if tc.WaitTime != nil {
		ts.SetWaitTime(tc.WaitTime.Min.GetDuration(0), tc.WaitTime.Max.GetDuration(0))
	}

	for j := range tc.Tasks {
		task, err := buildTask(tc.Name, &tc.Tasks[j], globals)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", j, err)
		}
		ts.Register(task)
	}
	return ts, nil
}

func buildTask(setName string, tc *config.TaskConfig, globals map[string]string) (*attack.Task, error) {
	steps := make([]*step, 0, len(tc.Requests))
	for k := range tc.Requests {
		s, err := newStep(&tc.Requests[k])
		if err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", k, err)
		}
		steps = append(steps, s)
	}

	fn := func(ctx context.Context, u *attack.User) error {
		vars := userVars(u, setName, globals)
		for _, s := range steps {
			if err := s.run(ctx, u, vars); err != nil {
				return err
			}
		}
		return nil
	}

	task := attack.NewTask(tc.Name, fn).
		SetWeight(weightOf(tc.Weight)).
		SetSequence(tc.Sequence)
	if tc.OnStart {
		task.SetOnStart()
	}
	if tc.OnStop {
		task.SetOnStop()
	}
	return task, nil
}

func weightOf(w *int) int {
	if w == nil {
		return 1
	}
	return *w
}

// userVars returns the variables of u, creating them on first use.
func userVars(u *attack.User, setName string, globals map[string]string) map[string]string {
	if v, ok := u.GetData(varsKey); ok {
		return v.(map[string]string)
	}
	vars := config.MergeVariables(globals, map[string]string{
		"userId":  strconv.Itoa(u.ID()),
		"taskSet": setName,
	})
	u.SetData(varsKey, vars)
	return vars
}

// step is one compiled request of a task.
type step struct {
	name    string
	method  string
	path    string
	headers map[string]string
	body    string
	expect  []int
	schema  *jsonschema.Schema
	extract []config.ExtractConfig
}

func newStep(rc *config.RequestConfig) (*step, error) {
	s := &step{
		name:    rc.Name,
		method:  strings.ToUpper(rc.Method),
		path:    rc.Path,
		headers: rc.Headers,
		body:    rc.Body,
		expect:  rc.ExpectStatus,
		extract: rc.Extract,
	}
	if s.method == "" {
		s.method = "GET"
	}
	// Templated paths share one metrics bucket.
	if s.name == "" {
		s.name = rc.Path
	}
	if rc.Schema != "" {
		schema, err := compileSchema(rc.Schema)
		if err != nil {
			return nil, err
		}
		s.schema = schema
	}
	return s, nil
}

func (s *step) request(vars map[string]string) *transport.Request {
	req := transport.NewRequest(s.method, config.ResolveVariables(s.path, vars)).WithName(s.name)
	for key, value := range s.headers {
		req.WithHeader(key, config.ResolveVariables(value, vars))
	}
	if s.body != "" {
		body := config.ResolveVariables(s.body, vars)
		req.WithBody(body)
		if !hasHeader(req.Headers, "Content-Type") && looksLikeJSON(body) {
			req.WithHeader("Content-Type", "application/json")
		}
	}
	return req
}

func (s *step) checks() []attack.Check {
	var checks []attack.Check
	if len(s.expect) > 0 {
		checks = append(checks, attack.ExpectStatus(s.expect...))
	}
	if s.schema != nil {
		checks = append(checks, schemaCheck(s.schema))
	}
	return checks
}

func (s *step) run(ctx context.Context, u *attack.User, vars map[string]string) error {
	resp, err := u.Request(ctx, s.request(vars), s.checks()...)
	if err != nil {
		return err
	}
	for _, ex := range s.extract {
		value, err := Extract(resp, ex.Source, ex.Path)
		if err != nil {
			return fmt.Errorf("extract %s from %s: %w", ex.Name, s.name, err)
		}
		vars[ex.Name] = value
	}
	return nil
}

func hasHeader(headers map[string]string, name string) bool {
	for key := range headers {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}

func looksLikeJSON(body string) bool {
	body = strings.TrimSpace(body)
	return strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[")
}
