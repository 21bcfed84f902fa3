package media

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"configurateur/internal/catalog"
)

// Kind tells whether a job mirrors a product picture or its datasheet.
type Kind string

const (
	KindImage     Kind = "IMG"
	KindDatasheet Kind = "FT"
)

// AccessoriesFamily is the mapping catalog; every other declared family is
// read with the plain id/image_url/datasheet_url layout.
const AccessoriesFamily = "accessories"

// AccessoryIDsFile lists every accessory id seen in the mapping, one per line.
const AccessoryIDsFile = "_accessories_downloaded_ids.txt"

// Job is one file to mirror.
type Job struct {
	Family string
	ID     string
	Kind   Kind
	URL    string
	Dest   string
}

// Plan is the ordered list of downloads derived from the catalogs.
type Plan struct {
	Jobs []Job
	// AccessoryIDs is nil when the accessories catalog is empty or missing.
	AccessoryIDs []string
}

// Dirs are the mirror roots; files land in <root>/<family>/<ID><ext>.
type Dirs struct {
	Images     string
	Datasheets string
}

type tableReader interface {
	Read(kind string) (*catalog.Table, error)
}

// accessory slots in the mapping catalog
var mountings = []string{"junction_box", "wall_mount", "ceiling_mount"}

// BuildPlan reads every catalog and turns its media URLs into jobs.
// Standard families come first in declared order, accessories last.
func BuildPlan(store tableReader, dirs Dirs) (*Plan, error) {
	plan := &Plan{}
	for _, name := range catalog.Names() {
		if name == AccessoriesFamily {
			continue
		}
		t, err := store.Read(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		plan.Jobs = append(plan.Jobs, standardJobs(name, t, dirs)...)
	}

	t, err := store.Read(AccessoriesFamily)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", AccessoriesFamily, err)
	}
	jobs, ids := accessoryJobs(t, dirs)
	plan.Jobs = append(plan.Jobs, jobs...)
	plan.AccessoryIDs = ids
	return plan, nil
}

func standardJobs(family string, t *catalog.Table, dirs Dirs) []Job {
	var jobs []Job
	for _, row := range t.Rows {
		id := catalog.NormalizeID(row["id"])
		if id == "" {
			continue
		}
		jobs = append(jobs, mediaJobs(family, id, cleanURL(row["image_url"]), cleanURL(row["datasheet_url"]), dirs)...)
	}
	return jobs
}

func accessoryJobs(t *catalog.Table, dirs Dirs) ([]Job, []string) {
	if len(t.Rows) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var jobs []Job
	for _, row := range t.Rows {
		for _, slot := range mountings {
			raw := row[slot+"_id"]
			if catalog.IsBlankLike(raw) {
				continue
			}
			id := catalog.NormalizeID(raw)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			img := cleanURL(row["image_url_"+slot])
			sheet := cleanURL(row["datasheet_url_"+slot])
			jobs = append(jobs, mediaJobs(AccessoriesFamily, id, img, sheet, dirs)...)
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return jobs, ids
}

func mediaJobs(family, id, imageURL, sheetURL string, dirs Dirs) []Job {
	var jobs []Job
	if imageURL != "" {
		jobs = append(jobs, Job{
			Family: family,
			ID:     id,
			Kind:   KindImage,
			URL:    imageURL,
			Dest:   filepath.Join(dirs.Images, family, id+extFromURL(imageURL, ".png")),
		})
	}
	if sheetURL != "" {
		jobs = append(jobs, Job{
			Family: family,
			ID:     id,
			Kind:   KindDatasheet,
			URL:    sheetURL,
			Dest:   filepath.Join(dirs.Datasheets, family, id+".pdf"),
		})
	}
	return jobs
}

func cleanURL(v string) string {
	if catalog.IsBlankLike(v) {
		return ""
	}
	return strings.TrimSpace(v)
}

func extFromURL(raw, fallback string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".pdf":
		return ext
	}
	return fallback
}
