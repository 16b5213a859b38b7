// Package taskgraph runs named tasks in dependency order.
package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownTask is returned when a target or dependency is not registered
	ErrUnknownTask = errors.New("unknown task")
	// ErrCycle is returned when the dependency edges form a cycle
	ErrCycle = errors.New("dependency cycle")
)

// Action is the work a task performs
type Action func(ctx context.Context) error

// Task is a node of the graph. DependsOn edges are explicit and ordered.
type Task struct {
	Name      string
	DependsOn []string
	Action    Action
}

// Hooks observe task execution. Either field may be nil.
type Hooks struct {
	OnStart  func(task string)
	OnFinish func(task string, elapsed time.Duration, err error)
}

// TaskFailure reports which task stopped a run
type TaskFailure struct {
	Task string
	Err  error
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("task %s failed: %v", f.Task, f.Err)
}

func (f *TaskFailure) Unwrap() error {
	return f.Err
}

// Graph holds tasks in registration order
type Graph struct {
	tasks map[string]Task
	order []string
}

// New creates an empty graph
func New() *Graph {
	return &Graph{tasks: make(map[string]Task)}
}

// Add registers a task. Names must be unique and non-empty; dependencies are
// checked when a plan is computed so tasks can be added in any order.
func (g *Graph) Add(task Task) error {
	if strings.TrimSpace(task.Name) == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if _, exists := g.tasks[task.Name]; exists {
		return fmt.Errorf("task %q already registered", task.Name)
	}
	task.DependsOn = append([]string(nil), task.DependsOn...)
	g.tasks[task.Name] = task
	g.order = append(g.order, task.Name)
	return nil
}

// MustAdd is Add for static graphs built at startup
func (g *Graph) MustAdd(task Task) {
	if err := g.Add(task); err != nil {
		panic(err)
	}
}

// Tasks returns task names in registration order
func (g *Graph) Tasks() []string {
	return append([]string(nil), g.order...)
}

// DependsOn returns the direct dependencies of a task
func (g *Graph) DependsOn(name string) ([]string, error) {
	task, ok := g.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return append([]string(nil), task.DependsOn...), nil
}

// Plan returns the tasks needed for target, dependencies first. The order is
// a depth-first post-order that follows DependsOn declaration order, so it is
// stable for a given graph.
func (g *Graph) Plan(target string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.tasks))
	var plan []string
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		task, ok := g.tasks[name]
		if !ok {
			if len(path) > 0 {
				return fmt.Errorf("%w: %s (required by %s)", ErrUnknownTask, name, path[len(path)-1])
			}
			return fmt.Errorf("%w: %s", ErrUnknownTask, name)
		}
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s -> %s", ErrCycle, strings.Join(path, " -> "), name)
		}

		state[name] = visiting
		path = append(path, name)
		for _, dep := range task.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		plan = append(plan, name)
		return nil
	}

	if err := visit(target); err != nil {
		return nil, err
	}
	return plan, nil
}

// Validate checks every task for unknown dependencies and cycles
func (g *Graph) Validate() error {
	for _, name := range g.order {
		if _, err := g.Plan(name); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the plan for target sequentially. The first failing task
// stops the run and is returned as a *TaskFailure; tasks after it never start.
func (g *Graph) Run(ctx context.Context, target string, hooks Hooks) error {
	plan, err := g.Plan(target)
	if err != nil {
		return err
	}

	for _, name := range plan {
		if err := ctx.Err(); err != nil {
			return &TaskFailure{Task: name, Err: err}
		}

		if hooks.OnStart != nil {
			hooks.OnStart(name)
		}
		start := time.Now()

		var runErr error
		if action := g.tasks[name].Action; action != nil {
			runErr = action(ctx)
		}

		if hooks.OnFinish != nil {
			hooks.OnFinish(name, time.Since(start), runErr)
		}
		if runErr != nil {
			return &TaskFailure{Task: name, Err: runErr}
		}
	}
	return nil
}
