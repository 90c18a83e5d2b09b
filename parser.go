package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/plaans/aries-sub004/core"
	"github.com/plaans/aries-sub004/model"
	"github.com/plaans/aries-sub004/solver"
)

// problem is a parsed input file: the model plus enough bookkeeping to
// print a solution in the input's vocabulary.
type problem struct {
	model     *model.Model
	objective *core.VarRef

	// DIMACS: literal of variable i at index i, 1-based
	boolVars []core.Lit
	// difference logic: declaration order and name resolution
	names []string
	vars  map[string]core.VarRef
}

// invalidf builds a parse error wrapping model.ErrInvalidProblem.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidProblem, fmt.Sprintf(format, args...))
}

// parseCNF reads a DIMACS CNF file: a "p cnf <vars> <clauses>" header
// followed by clauses as 0-terminated integer lists, possibly spanning
// several lines.
func parseCNF(r io.Reader) (*problem, error) {
	pb := &problem{model: model.New()}
	var clause []core.Lit
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "c") {
			continue
		}
		if strings.HasPrefix(line, "p") {
			fields := strings.Fields(line)
			if len(fields) != 4 || fields[1] != "cnf" {
				return nil, invalidf("invalid header %q", line)
			}
			nbVars, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, invalidf("invalid header %q", line)
			}
			pb.boolVars = make([]core.Lit, nbVars+1)
			for i := 1; i <= nbVars; i++ {
				pb.boolVars[i] = pb.model.NewBoolVar(fmt.Sprintf("x%d", i))
			}
			continue
		}
		if pb.boolVars == nil {
			return nil, invalidf("clause before the problem header")
		}
		for _, field := range strings.Fields(line) {
			n, err := strconv.Atoi(field)
			if err != nil {
				return nil, invalidf("invalid literal %q", field)
			}
			switch {
			case n == 0:
				pb.model.Enforce(model.Or(clause...))
				clause = clause[:0]
			case n > 0 && n < len(pb.boolVars):
				clause = append(clause, pb.boolVars[n])
			case n < 0 && -n < len(pb.boolVars):
				clause = append(clause, pb.boolVars[-n].Not())
			default:
				return nil, invalidf("literal %d out of range", n)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(clause) > 0 {
		pb.model.Enforce(model.Or(clause...))
	}
	if pb.boolVars == nil {
		return nil, invalidf("missing problem header")
	}
	return pb, nil
}

// parseSTN reads a small difference-logic format, one statement per
// line, '#' starting a comment:
//
//	var <name> <lb> <ub>
//	diff <x> <y> <k>   enforces x - y <= k
//	leq <x> <y>        enforces x <= y
//	lt <x> <y>         enforces x < y
//	min <name>         minimizes the variable
func parseSTN(r io.Reader) (*problem, error) {
	pb := &problem{model: model.New(), vars: map[string]core.VarRef{}}
	sc := bufio.NewScanner(r)
	num := 0
	for sc.Scan() {
		num++
		line := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if err := pb.parseStatement(fields); err != nil {
			return nil, invalidf("line %d: %v", num, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return pb, nil
}

func (pb *problem) parseStatement(fields []string) error {
	switch fields[0] {
	case "var":
		if len(fields) != 4 {
			return fmt.Errorf("want: var <name> <lb> <ub>")
		}
		name := fields[1]
		if _, ok := pb.vars[name]; ok {
			return fmt.Errorf("duplicate variable %q", name)
		}
		lb, err1 := strconv.Atoi(fields[2])
		ub, err2 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("invalid bounds for %q", name)
		}
		pb.vars[name] = pb.model.NewIntVar(lb, ub, name)
		pb.names = append(pb.names, name)
	case "diff":
		if len(fields) != 4 {
			return fmt.Errorf("want: diff <x> <y> <k>")
		}
		x, y, err := pb.resolve(fields[1], fields[2])
		if err != nil {
			return err
		}
		k, err := strconv.Atoi(fields[3])
		if err != nil {
			return fmt.Errorf("invalid weight %q", fields[3])
		}
		pb.model.Enforce(model.MaxDiff(y, x, k))
	case "leq", "lt":
		if len(fields) != 3 {
			return fmt.Errorf("want: %s <x> <y>", fields[0])
		}
		x, y, err := pb.resolve(fields[1], fields[2])
		if err != nil {
			return err
		}
		if fields[0] == "leq" {
			pb.model.Enforce(model.Leq(x, y))
		} else {
			pb.model.Enforce(model.Lt(x, y))
		}
	case "min":
		if len(fields) != 2 {
			return fmt.Errorf("want: min <name>")
		}
		v, ok := pb.vars[fields[1]]
		if !ok {
			return fmt.Errorf("unknown variable %q", fields[1])
		}
		pb.objective = &v
	default:
		return fmt.Errorf("unknown statement %q", fields[0])
	}
	return nil
}

func (pb *problem) resolve(a, b string) (core.VarRef, core.VarRef, error) {
	x, ok := pb.vars[a]
	if !ok {
		return 0, 0, fmt.Errorf("unknown variable %q", a)
	}
	y, ok := pb.vars[b]
	if !ok {
		return 0, 0, fmt.Errorf("unknown variable %q", b)
	}
	return x, y, nil
}

func (pb *problem) printModel(res *solver.Assignment) {
	if pb.boolVars != nil {
		var b strings.Builder
		b.WriteString("v")
		for i := 1; i < len(pb.boolVars); i++ {
			if v, _ := res.Value(pb.boolVars[i]); v {
				fmt.Fprintf(&b, " %d", i)
			} else {
				fmt.Fprintf(&b, " %d", -i)
			}
		}
		b.WriteString(" 0")
		fmt.Println(b.String())
		return
	}
	for _, name := range pb.names {
		v := pb.vars[name]
		if value, ok := res.ValueOf(v); ok {
			fmt.Printf("v %s = %d\n", name, value)
		} else {
			fmt.Printf("v %s in [%d, %d]\n", name, res.LowerBound(v), res.UpperBound(v))
		}
	}
}
