package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

const (
	ProblemUnreadable = "unreadable"
	ProblemNoIDColumn = "no_id_column"
	ProblemMissingID  = "missing_id"
	ProblemDuplicate  = "duplicate"
	ProblemCollision  = "collision"
)

type Problem struct {
	Family string `json:"family"`
	Kind   string `json:"kind"`
	Row    int    `json:"row,omitempty"` // 1-based data row, header excluded
	ID     string `json:"id,omitempty"`
	Detail string `json:"detail"`
}

type LintReport struct {
	Catalogs    int       `json:"catalogs"`
	Identifiers int       `json:"identifiers"`
	Problems    []Problem `json:"problems"`
}

func (r *LintReport) OK() bool { return len(r.Problems) == 0 }

// Lint checks every declared catalog under root for rows without an id,
// duplicate ids within a file and ids shared by several families. Shared ids
// resolve to the first family only, so each one is reported.
func Lint(root string) *LintReport {
	rep := &LintReport{Problems: []Problem{}}
	owner := make(map[string]string)

	for _, f := range declared {
		t, err := parseFile(filepath.Join(root, f.Filename()))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				rep.Problems = append(rep.Problems, Problem{Family: f.Name, Kind: ProblemUnreadable, Detail: err.Error()})
			}
			continue
		}
		rep.Catalogs++

		if !t.Has("id") {
			rep.Problems = append(rep.Problems, Problem{Family: f.Name, Kind: ProblemNoIDColumn, Detail: "header has no id column"})
			continue
		}

		seen := make(map[string]int)
		for i, row := range t.Rows {
			n := i + 1
			id := NormalizeID(row["id"])
			if id == "" {
				rep.Problems = append(rep.Problems, Problem{Family: f.Name, Kind: ProblemMissingID, Row: n, Detail: "row has no id"})
				continue
			}
			if first, dup := seen[id]; dup {
				rep.Problems = append(rep.Problems, Problem{
					Family: f.Name, Kind: ProblemDuplicate, Row: n, ID: id,
					Detail: fmt.Sprintf("already declared on row %d", first),
				})
				continue
			}
			seen[id] = n
		}

		reported := make(map[string]bool)
		for _, id := range identifiers(t, f) {
			prev, taken := owner[id]
			switch {
			case !taken:
				owner[id] = f.Name
			case prev != f.Name && !reported[id]:
				reported[id] = true
				rep.Problems = append(rep.Problems, Problem{
					Family: f.Name, Kind: ProblemCollision, ID: id,
					Detail: "declared earlier in " + prev,
				})
			}
		}
	}

	rep.Identifiers = len(owner)
	return rep
}
