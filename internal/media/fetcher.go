package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Status is the coarse outcome of a job.
type Status string

const (
	StatusOK   Status = "OK"
	StatusSkip Status = "SKIP"
	StatusErr  Status = "ERR"
)

type Outcome struct {
	Job    Job
	Status Status
	Detail string
}

func (o Outcome) String() string {
	if o.Detail == "" {
		return string(o.Status)
	}
	return fmt.Sprintf("%s (%s)", o.Status, o.Detail)
}

// Fetcher downloads a single job when the target file is still missing.
type Fetcher struct {
	Client       *http.Client
	AllowedHosts map[string]struct{}
}

func NewFetcher(timeout time.Duration, hosts []string) *Fetcher {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = struct{}{}
		}
	}
	return &Fetcher{
		Client:       &http.Client{Timeout: timeout},
		AllowedHosts: allowed,
	}
}

func (f *Fetcher) allowed(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	_, ok := f.AllowedHosts[strings.ToLower(u.Host)]
	return ok
}

// Fetch never returns an error; failures are reported in the outcome so one
// broken URL does not stop the rest of the mirror.
func (f *Fetcher) Fetch(ctx context.Context, job Job) Outcome {
	if job.URL == "" {
		return Outcome{Job: job, Status: StatusSkip, Detail: "empty url"}
	}
	u, err := url.Parse(job.URL)
	if err != nil || !f.allowed(u) {
		host := ""
		if u != nil {
			host = u.Host
		}
		return Outcome{Job: job, Status: StatusSkip, Detail: "host not allowed: " + host}
	}
	if st, err := os.Stat(job.Dest); err == nil && st.Mode().IsRegular() && st.Size() > 0 {
		return Outcome{Job: job, Status: StatusSkip, Detail: "already present"}
	}

	if err := f.download(ctx, u.String(), job.Dest); err != nil {
		return Outcome{Job: job, Status: StatusErr, Detail: err.Error()}
	}
	return Outcome{Job: job, Status: StatusOK}
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if n == 0 {
		return errors.New("empty body")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
