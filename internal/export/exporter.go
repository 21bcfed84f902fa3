package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"configurateur/internal/catalog"
	"configurateur/internal/datasheet"
	"configurateur/internal/metrics"
)

// Archive layout.
const (
	ReportPath        = "rapport/rapport_configurateur.pdf"
	DatasheetsPrefix  = "fiches_techniques"
	MissingReportPath = DatasheetsPrefix + "/_MANQUANTES.txt"
	ManifestPath      = "manifest.json"
)

// FamilyIndex gives the likely family of every known identifier.
type FamilyIndex interface {
	Snapshot() map[string]string
}

// DatasheetFinder finds the document of an identifier, starting with its
// likely family.
type DatasheetFinder interface {
	Search(likely, id string) (family, path string, ok bool)
}

type Request struct {
	Document []byte
	IDs      []string
	Name     string
}

type Included struct {
	ID      string `json:"id"`
	Family  string `json:"family"`
	ZipPath string `json:"zip_path"`
}

type Missing struct {
	Family string `json:"family"`
	ID     string `json:"id"`
}

type Manifest struct {
	GeneratedAt             string     `json:"generated_at"`
	DatasheetsDir           string     `json:"datasheets_dir"`
	TotalIDsRequested       int        `json:"total_ids_requested"`
	TotalDatasheetsIncluded int        `json:"total_datasheets_included"`
	TotalMissing            int        `json:"total_missing"`
	Included                []Included `json:"included"`
	Missing                 []Missing  `json:"missing"`
}

type Result struct {
	Name     string
	Archive  []byte
	Manifest Manifest
}

type Options struct {
	DatasheetsDir    string
	MinDocumentBytes int
	MaxNameLength    int
}

// Exporter bundles a report and the cached datasheets of a product list
// into one zip archive.
type Exporter struct {
	index   FamilyIndex
	sheets  DatasheetFinder
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics

	now      func() time.Time
	readFile func(string) ([]byte, error)
}

func NewExporter(index FamilyIndex, sheets DatasheetFinder, opts Options, m *metrics.Metrics, log *zap.Logger) *Exporter {
	if opts.MinDocumentBytes <= 0 {
		opts.MinDocumentBytes = DefaultMinDocumentBytes
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = DefaultMaxNameLength
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{
		index:    index,
		sheets:   sheets,
		opts:     opts,
		log:      log,
		metrics:  m,
		now:      time.Now,
		readFile: os.ReadFile,
	}
}

// Decode decodes a base64 report with the configured size floor.
func (e *Exporter) Decode(payload string) ([]byte, error) {
	return decodeDocument(payload, e.opts.MinDocumentBytes)
}

// SanitizeName applies the configured length cap.
func (e *Exporter) SanitizeName(name string) string {
	return sanitizeArchiveName(name, e.opts.MaxNameLength)
}

// Export builds the archive. Only an invalid report (or a cancelled ctx)
// fails; a datasheet that cannot be found or read is listed as missing.
func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	if err := checkDocument(req.Document, e.opts.MinDocumentBytes); err != nil {
		e.count("invalid_document")
		return nil, err
	}

	ids := NormalizeIDs(req.IDs)
	families := e.index.Snapshot()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := e.now()

	if err := e.writeEntry(zw, ReportPath, req.Document, modified); err != nil {
		e.count("error")
		return nil, err
	}

	m := Manifest{
		GeneratedAt:   modified.UTC().Format(time.RFC3339),
		DatasheetsDir: e.opts.DatasheetsDir,
		Included:      []Included{},
		Missing:       []Missing{},
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			e.count("error")
			return nil, err
		}

		likely, ok := families[id]
		if !ok {
			likely = datasheet.Unclassified
		}

		// ids also name zip entries; anything that is not a bare file name is missing
		if !datasheet.SafeID(id) {
			e.log.Info("datasheet id rejected", zap.String("id", id))
			m.Missing = append(m.Missing, Missing{Family: likely, ID: id})
			continue
		}

		family, file, found := e.sheets.Search(likely, id)
		if !found {
			m.Missing = append(m.Missing, Missing{Family: likely, ID: id})
			continue
		}

		// read before creating the entry so a failure leaves no partial file
		data, err := e.readFile(file)
		if err != nil {
			e.log.Warn("datasheet read failed",
				zap.String("id", id), zap.String("path", file),
				zap.Error(fmt.Errorf("%w: %v", datasheet.ErrDatasheetUnavailable, err)))
			m.Missing = append(m.Missing, Missing{Family: likely, ID: id})
			continue
		}

		zipPath := path.Join(DatasheetsPrefix, family, id+".pdf")
		// a failed write leaves a partial entry behind, so the archive is unusable
		if err := e.writeEntry(zw, zipPath, data, modified); err != nil {
			e.count("error")
			return nil, err
		}
		m.Included = append(m.Included, Included{ID: id, Family: family, ZipPath: zipPath})
	}

	m.TotalIDsRequested = len(ids)
	m.TotalDatasheetsIncluded = len(m.Included)
	m.TotalMissing = countUniqueMissing(m.Missing)

	if len(m.Missing) > 0 {
		if err := e.writeEntry(zw, MissingReportPath, missingReport(m.Missing), modified); err != nil {
			e.count("error")
			return nil, err
		}
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		e.count("error")
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := e.writeEntry(zw, ManifestPath, manifest, modified); err != nil {
		e.count("error")
		return nil, err
	}
	if err := zw.Close(); err != nil {
		e.count("error")
		return nil, fmt.Errorf("close archive: %w", err)
	}

	e.count("ok")
	if e.metrics != nil {
		e.metrics.ExportDatasheetsTotal.WithLabelValues("included").Add(float64(m.TotalDatasheetsIncluded))
		e.metrics.ExportDatasheetsTotal.WithLabelValues("missing").Add(float64(m.TotalMissing))
	}

	return &Result{
		Name:     e.SanitizeName(req.Name),
		Archive:  buf.Bytes(),
		Manifest: m,
	}, nil
}

func (e *Exporter) writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (e *Exporter) count(result string) {
	if e.metrics != nil {
		e.metrics.ExportsTotal.WithLabelValues(result).Inc()
	}
}

// NormalizeIDs trims and upper-cases ids, dropping blanks and keeping the
// first occurrence of each.
func NormalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := catalog.NormalizeID(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func countUniqueMissing(missing []Missing) int {
	seen := make(map[Missing]struct{}, len(missing))
	for _, m := range missing {
		seen[m] = struct{}{}
	}
	return len(seen)
}

// missingReport groups missing ids by family, both sorted.
func missingReport(missing []Missing) []byte {
	byFamily := make(map[string][]string)
	for _, m := range missing {
		byFamily[m.Family] = append(byFamily[m.Family], m.ID)
	}
	families := make([]string, 0, len(byFamily))
	for f := range byFamily {
		families = append(families, f)
	}
	sort.Strings(families)

	var b strings.Builder
	fmt.Fprintf(&b, "Fiches techniques manquantes : %d\n", countUniqueMissing(missing))
	for _, f := range families {
		ids := byFamily[f]
		sort.Strings(ids)
		fmt.Fprintf(&b, "\n[%s]\n", f)
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s\n", id)
		}
	}
	return []byte(b.String())
}
