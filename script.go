package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/appdist/internal/cascade"
	"github.com/tonimelisma/appdist/internal/payload"
)

// Script is a recorded form session: a form kind, optional edit-flow initial
// values, and the ordered selection steps to replay.
//
//	kind = "campus"
//	record_id = "17"
//	submit = true
//
//	[initial]
//	campaignDistrictName = "Hyderabad"
//
//	[fields]
//	issueDate = "05/01/2026"
//
//	[[step]]
//	level = "city"
//	label = "Ameerpet"
//
//	[[step]]
//	extra = "applicationFee"
//	value = "500"
type Script struct {
	Kind       string            `toml:"kind"`
	EmployeeID string            `toml:"employee_id"`
	RecordID   string            `toml:"record_id"`
	Submit     bool              `toml:"submit"`
	Initial    map[string]string `toml:"initial"`
	Fields     map[string]any    `toml:"fields"`
	Steps      []Step            `toml:"step"`

	kind payload.Kind
}

// Step is one action. Exactly one of Level, Extra, Values or Refresh is set.
type Step struct {
	Level   string            `toml:"level"`
	Label   string            `toml:"label"`
	ID      *int64            `toml:"id"`
	Extra   string            `toml:"extra"`
	Value   string            `toml:"value"`
	Values  map[string]string `toml:"values"`
	Refresh string            `toml:"refresh"`
}

// StepResult reports what one step did.
type StepResult struct {
	Step    int    `json:"step"`
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
}

// ScriptResult is the outcome of replaying a script.
type ScriptResult struct {
	Steps    []StepResult     `json:"steps"`
	Snapshot cascade.Snapshot `json:"snapshot"`
}

var errScriptInvalid = errors.New("invalid script")

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	var s Script

	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("parsing script %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("%w: unknown keys %s", errScriptInvalid, strings.Join(keys, ", "))
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Script) validate() error {
	kind, err := payload.ParseKind(s.Kind)
	if err != nil {
		return err
	}

	s.kind = kind

	var errs []error

	for i, st := range s.Steps {
		if n := st.actions(); n != 1 {
			errs = append(errs, fmt.Errorf("%w: step %d has %d actions, want 1", errScriptInvalid, i+1, n))
		}
	}

	if s.Submit && s.RecordID == "" {
		errs = append(errs, fmt.Errorf("%w: submit needs record_id", errScriptInvalid))
	}

	return errors.Join(errs...)
}

func (st Step) actions() int {
	n := 0

	for _, set := range []bool{st.Level != "", st.Extra != "", len(st.Values) > 0, st.Refresh != ""} {
		if set {
			n++
		}
	}

	return n
}

func (st Step) describe() string {
	switch {
	case st.Level != "" && st.ID != nil:
		return fmt.Sprintf("select %s #%d", st.Level, *st.ID)
	case st.Level != "":
		return fmt.Sprintf("select %s %q", st.Level, st.Label)
	case st.Extra != "":
		return fmt.Sprintf("set %s %q", st.Extra, st.Value)
	case st.Refresh != "":
		return "refresh " + st.Refresh
	default:
		return fmt.Sprintf("apply %d values", len(st.Values))
	}
}

// apply runs the step against sess.
func (st Step) apply(sess *cascade.Session) (string, error) {
	switch {
	case st.Level != "" && st.ID != nil:
		out, err := sess.SelectLevelID(cascade.Level(st.Level), cascade.ID(*st.ID))
		return out.String(), err
	case st.Level != "":
		out, err := sess.SelectLevel(cascade.Level(st.Level), st.Label)
		return out.String(), err
	case st.Extra != "":
		out, err := sess.SelectExtra(st.Extra, st.Value)
		return out.String(), err
	case st.Refresh != "":
		return "refreshed", sess.Refresh(st.Refresh)
	default:
		return "applied", sess.ApplyValues(st.Values)
	}
}

// RunScript replays steps on sess, settling after each so that every label
// resolves against a loaded option list. A step that misses is reported,
// not fatal; programming errors such as unknown levels stop the replay.
func RunScript(ctx context.Context, svc *Services, sess *cascade.Session, steps []Step) (*ScriptResult, error) {
	if err := svc.Settle(ctx, sess); err != nil {
		return nil, err
	}

	res := &ScriptResult{}

	for i, st := range steps {
		out, err := st.apply(sess)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, st.describe(), err)
		}

		if err := svc.Settle(ctx, sess); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, st.describe(), err)
		}

		res.Steps = append(res.Steps, StepResult{Step: i + 1, Action: st.describe(), Outcome: out})
	}

	res.Snapshot = sess.Snapshot()

	return res, nil
}
