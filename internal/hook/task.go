package hook

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/basket/need/internal/priority"
)

// Task statuses the hooks react to.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusDeleted   = "deleted"
)

//go:embed task.schema.json
var taskSchemaJSON string

var compileTaskSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(taskSchemaJSON)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal task schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("task.schema.json", doc); err != nil {
		return nil, fmt.Errorf("add task schema: %w", err)
	}
	return c.Compile("task.schema.json")
})

// snapshot is one task line as received. raw is never re-encoded: the only
// change ever made is patching the priority field in place.
type snapshot struct {
	raw  []byte
	task priority.Task
	// given is the priority field as sent, whatever its JSON type, for logs.
	given string
}

func parseSnapshot(line []byte) (snapshot, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return snapshot{}, fmt.Errorf("empty task line")
	}
	if !gjson.ValidBytes(line) {
		return snapshot{}, fmt.Errorf("task line is not valid JSON")
	}
	schema, err := compileTaskSchema()
	if err != nil {
		return snapshot{}, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(line))
	if err != nil {
		return snapshot{}, fmt.Errorf("decode task: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return snapshot{}, fmt.Errorf("task does not match schema: %w", err)
	}

	fields := gjson.GetManyBytes(line, "uuid", "description", "project", "status", "tags", "priority")
	t := priority.Task{
		UUID:        fields[0].String(),
		Description: fields[1].String(),
		Project:     fields[2].String(),
		Status:      fields[3].String(),
	}
	for _, tag := range fields[4].Array() {
		t.Tags = append(t.Tags, tag.String())
	}
	// Only a JSON string can hold a level; 3 or true stay out of
	// Task.Priority and get replaced like any other invalid value.
	snap := snapshot{raw: line}
	switch p := fields[5]; {
	case p.Type == gjson.String:
		t.Priority = p.Str
		snap.given = p.Str
	case p.Exists():
		snap.given = p.Raw
	}
	snap.task = t
	return snap, nil
}

// withPriority returns a copy of the snapshot with priority set to l.
func (s snapshot) withPriority(l priority.Level) (snapshot, error) {
	patched, err := sjson.SetBytes(append([]byte(nil), s.raw...), "priority", l.String())
	if err != nil {
		return s, fmt.Errorf("set priority: %w", err)
	}
	s.raw = patched
	s.task.Priority = l.String()
	s.given = s.task.Priority
	return s, nil
}

// level is the task's priority when valid.
func (s snapshot) level() (priority.Level, bool) {
	return priority.ParseLevel(s.task.Priority)
}
