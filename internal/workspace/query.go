package workspace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/moonrepo/moon-core/internal/id"
	"github.com/moonrepo/moon-core/internal/target"
)

// Field is an MQL-queryable field name.
type Field string

const (
	FieldLanguage      Field = "language"
	FieldProject       Field = "project"
	FieldProjectAlias  Field = "projectAlias"
	FieldProjectName   Field = "projectName"
	FieldProjectSource Field = "projectSource"
	FieldProjectStack  Field = "projectStack"
	FieldProjectType   Field = "projectType"
	FieldTag           Field = "tag"
	FieldTask          Field = "task"
	FieldTaskToolchain Field = "taskToolchain"
	FieldTaskType      Field = "taskType"
)

// Op is an MQL comparison operator.
type Op string

const (
	OpEq      Op = "="
	OpNeq     Op = "!="
	OpGlob    Op = "~"
	OpNotGlob Op = "!~"
)

// clause is a single "field op value(s)" comparison.
type clause struct {
	field  Field
	op     Op
	values []string
}

// expr is a boolean combination of clauses: a flat OR-of-ANDs, which is
// exactly what the "&&"/"||" grammar (with && binding tighter) produces.
type expr struct {
	orGroups [][]clause
}

// ParseQuery parses an MQL criteria string into a reusable, cacheable
// expr. Grammar: expr := and ('||' and)*; and := clause ('&&' clause)*;
// clause := field op value; value := ident | '[' ident (',' ident)* ']'.
func ParseQuery(criteria string) (*expr, error) {
	orParts := strings.Split(criteria, "||")
	e := &expr{}
	for _, orPart := range orParts {
		andParts := strings.Split(orPart, "&&")
		var group []clause
		for _, andPart := range andParts {
			c, err := parseClause(strings.TrimSpace(andPart))
			if err != nil {
				return nil, fmt.Errorf("workspace: query %q: %w", criteria, err)
			}
			group = append(group, c)
		}
		e.orGroups = append(e.orGroups, group)
	}
	return e, nil
}

func parseClause(s string) (clause, error) {
	for _, op := range []Op{OpNotGlob, OpNeq, OpGlob, OpEq} {
		idx := strings.Index(s, string(op))
		if idx < 0 {
			continue
		}
		// Guard against "!=" and "!~" being mis-split by a lone "=" or "~" scan:
		// since OpNotGlob/OpNeq are checked first, the longer operators win.
		field := Field(strings.TrimSpace(s[:idx]))
		valuePart := strings.TrimSpace(s[idx+len(op):])
		values, err := parseValue(valuePart)
		if err != nil {
			return clause{}, err
		}
		return clause{field: field, op: op, values: values}, nil
	}
	return clause{}, fmt.Errorf("no recognized operator in clause %q", s)
}

func parseValue(s string) ([]string, error) {
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("unterminated list value %q", s)
		}
		inner := s[1 : len(s)-1]
		parts := strings.Split(inner, ",")
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out, nil
	}
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	return []string{s}, nil
}

func (c clause) matches(fieldValue string) (bool, error) {
	switch c.op {
	case OpEq:
		for _, v := range c.values {
			if v == fieldValue {
				return true, nil
			}
		}
		return false, nil
	case OpNeq:
		for _, v := range c.values {
			if v == fieldValue {
				return false, nil
			}
		}
		return true, nil
	case OpGlob, OpNotGlob:
		matched := false
		for _, v := range c.values {
			g, err := glob.Compile(v)
			if err != nil {
				return false, fmt.Errorf("invalid glob %q: %w", v, err)
			}
			if g.Match(fieldValue) {
				matched = true
				break
			}
		}
		if c.op == OpNotGlob {
			return !matched, nil
		}
		return matched, nil
	}
	return false, fmt.Errorf("unknown operator %q", c.op)
}

func (e *expr) evalProject(p *Project) (bool, error) {
	for _, group := range e.orGroups {
		allMatch := true
		for _, c := range group {
			ok, err := e.evalProjectClause(c, p)
			if err != nil {
				return false, err
			}
			if !ok {
				allMatch = false
				break
			}
		}
		if allMatch {
			return true, nil
		}
	}
	return false, nil
}

func (e *expr) evalProjectClause(c clause, p *Project) (bool, error) {
	switch c.field {
	case FieldLanguage:
		return c.matches(p.Language)
	case FieldProject:
		return c.matches(p.ID.String())
	case FieldProjectAlias:
		return c.matches(p.Alias)
	case FieldProjectName:
		return c.matches(p.ID.String())
	case FieldProjectSource:
		return c.matches(p.Source.String())
	case FieldProjectStack:
		return c.matches(p.Stack)
	case FieldProjectType:
		return c.matches(p.Layer)
	case FieldTag:
		for _, tag := range p.Tags {
			if ok, err := c.matches(tag.String()); err != nil {
				return false, err
			} else if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		// Task-scoped fields never match at the project level.
		return false, nil
	}
}

func (e *expr) evalTask(p *Project, t *Task) (bool, error) {
	for _, group := range e.orGroups {
		allMatch := true
		for _, c := range group {
			ok, err := e.evalTaskClause(c, p, t)
			if err != nil {
				return false, err
			}
			if !ok {
				allMatch = false
				break
			}
		}
		if allMatch {
			return true, nil
		}
	}
	return false, nil
}

func (e *expr) evalTaskClause(c clause, p *Project, t *Task) (bool, error) {
	switch c.field {
	case FieldTask:
		return c.matches(t.ID.String())
	case FieldTaskType:
		return c.matches(string(t.Type))
	case FieldTaskToolchain:
		for _, tc := range t.Toolchains {
			if ok, err := c.matches(tc.String()); err != nil {
				return false, err
			} else if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return e.evalProjectClause(c, p)
	}
}

// QueryProjects returns every project id matching criteria, in
// deterministic (lexicographic) order. Results are cached by the
// canonical criteria string so repeated queries in one pipeline run
// don't re-parse/re-evaluate.
func (c *Catalog) QueryProjects(criteria string) ([]string, error) {
	e, err := c.cachedParse(criteria)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, pid := range c.ProjectIDs() {
		p := c.Projects[pid]
		ok, err := e.evalProject(p)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pid.String())
		}
	}
	sort.Strings(out)
	return out, nil
}

// QueryTasks returns every qualified Target matching criteria, in
// deterministic (lexicographic) order over the target's wire form, so
// downstream hashing sees a stable task ordering.
func (c *Catalog) QueryTasks(criteria string) ([]target.Target, error) {
	e, err := c.cachedParse(criteria)
	if err != nil {
		return nil, err
	}
	var out []target.Target
	for _, pid := range c.ProjectIDs() {
		p := c.Projects[pid]
		taskIDs := make([]id.Id, 0, len(p.Tasks))
		for tid := range p.Tasks {
			taskIDs = append(taskIDs, tid)
		}
		sort.Slice(taskIDs, func(i, j int) bool { return id.Less(taskIDs[i], taskIDs[j]) })
		for _, tid := range taskIDs {
			t := p.Tasks[tid]
			ok, err := e.evalTask(p, t)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, t.Target)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// cachedParse parses criteria, or returns the cached expr from a prior
// identical query string.
func (c *Catalog) cachedParse(criteria string) (*expr, error) {
	c.queryMu.RLock()
	e, ok := c.queryCache[criteria]
	c.queryMu.RUnlock()
	if ok {
		return e, nil
	}
	parsed, err := ParseQuery(criteria)
	if err != nil {
		return nil, err
	}
	c.queryMu.Lock()
	c.queryCache[criteria] = parsed
	c.queryMu.Unlock()
	return parsed, nil
}
