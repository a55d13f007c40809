package executor

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
	"github.com/hochfrequenz/worksim/internal/protocol"
)

// fetchTimeout bounds outbound HTTP requests made by browse and download
// actions. Action durations are simulated by the caller, not by the
// executor, so nothing here should block for long.
const fetchTimeout = 30 * time.Second

// Runner executes individual actions inside per-worker directories.
type Runner struct {
	workDir   string
	allowExec bool
	client    *http.Client
}

// NewRunner creates a runner rooted at cfg.WorkDir.
func NewRunner(cfg Config) *Runner {
	root := cfg.WorkDir
	if root == "" {
		root = filepath.Join(os.TempDir(), "worksim")
	}
	return &Runner{
		workDir:   root,
		allowExec: cfg.AllowExec,
		client:    &http.Client{Timeout: fetchTimeout},
	}
}

// Run executes one action and always returns a result echoing the request
// id; execution failures are reported in the result, never panicked.
func (r *Runner) Run(workerID string, action protocol.ActionMessage) protocol.ResultMessage {
	start := time.Now()
	metadata, err := r.execute(workerID, action)
	elapsed := time.Since(start)

	result := protocol.ResultMessage{
		ID:         action.ID,
		Success:    err == nil,
		DurationMs: elapsed.Milliseconds(),
		Metadata:   metadata,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func (r *Runner) execute(workerID string, action protocol.ActionMessage) (map[string]string, error) {
	dir, err := r.workerDir(workerID)
	if err != nil {
		return nil, err
	}

	switch domain.ActionKind(action.Kind) {
	case domain.KindLaunchApp:
		return r.launchApp(action)
	case domain.KindBrowse:
		return r.browse(action)
	case domain.KindCreateDoc:
		return r.createDocument(dir, action)
	case domain.KindFileOp:
		return r.fileOp(dir, action)
	case domain.KindDownload:
		return r.download(dir, action)
	case domain.KindEmailCheck:
		return r.checkEmail(action)
	case domain.KindIdle:
		return map[string]string{"idled": "true"}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (r *Runner) workerDir(workerID string) (string, error) {
	// Worker ids come from the network; keep them to a single path element.
	clean := filepath.Base(workerID)
	if clean == "." || clean == string(filepath.Separator) {
		clean = "default"
	}
	dir := filepath.Join(r.workDir, clean)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create worker dir: %w", err)
	}
	return dir, nil
}

func (r *Runner) launchApp(action protocol.ActionMessage) (map[string]string, error) {
	app := action.Target
	if app == "" {
		return nil, fmt.Errorf("launch_app requires a target")
	}
	if !r.allowExec {
		return map[string]string{"app": app, "launched": "simulated"}, nil
	}
	cmd := exec.Command(app)
	if args := action.Params["args"]; args != "" {
		cmd = exec.Command(app, strings.Fields(args)...)
	}
	if err := cmd.Start(); err != nil {
		return map[string]string{"app": app}, fmt.Errorf("launch %s: %w", app, err)
	}
	// Detach; the simulated worker does not wait for applications to exit.
	go cmd.Wait()
	return map[string]string{"app": app, "pid": strconv.Itoa(cmd.Process.Pid)}, nil
}

func (r *Runner) browse(action protocol.ActionMessage) (map[string]string, error) {
	url := action.Target
	if url == "" {
		return nil, fmt.Errorf("browse_web requires a target URL")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	resp, err := r.client.Get(url)
	if err != nil {
		return map[string]string{"url": url}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	n, _ := io.Copy(io.Discard, resp.Body)
	return map[string]string{
		"url":        url,
		"status":     strconv.Itoa(resp.StatusCode),
		"body_bytes": strconv.FormatInt(n, 10),
	}, nil
}

func (r *Runner) createDocument(dir string, action protocol.ActionMessage) (map[string]string, error) {
	name := action.Target
	if name == "" {
		name = fmt.Sprintf("document-%d.txt", time.Now().Unix())
	}
	name = filepath.Base(name)
	content := action.Params["content"]
	if content == "" {
		content = fmt.Sprintf("%s\n\nCreated %s\n", strings.TrimSuffix(name, filepath.Ext(name)), time.Now().Format(time.RFC1123))
	}
	path := filepath.Join(dir, "documents", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	return map[string]string{"path": path, "bytes": strconv.Itoa(len(content))}, nil
}

func (r *Runner) fileOp(dir string, action protocol.ActionMessage) (map[string]string, error) {
	op := action.Params["operation"]
	if op == "" {
		op = "organize"
	}
	name := filepath.Base(action.Target)

	switch op {
	case "organize":
		// Sweep loose files in the worker root into a dated folder.
		dest := filepath.Join(dir, "organized", time.Now().Format("2006-01-02"))
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		moved := 0
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Rename(filepath.Join(dir, e.Name()), filepath.Join(dest, e.Name())); err == nil {
				moved++
			}
		}
		return map[string]string{"operation": op, "moved": strconv.Itoa(moved)}, nil

	case "copy":
		if name == "." {
			return nil, fmt.Errorf("file_op copy requires a target")
		}
		src := filepath.Join(dir, name)
		dst := src + ".bak"
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return nil, err
		}
		return map[string]string{"operation": op, "copy": dst}, nil

	case "delete":
		if name == "." {
			return nil, fmt.Errorf("file_op delete requires a target")
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove %s: %w", name, err)
		}
		return map[string]string{"operation": op, "removed": path}, nil

	default:
		return nil, fmt.Errorf("unknown file operation %q", op)
	}
}

func (r *Runner) download(dir string, action protocol.ActionMessage) (map[string]string, error) {
	url := action.Target
	if url == "" {
		return nil, fmt.Errorf("download_file requires a target URL")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	resp, err := r.client.Get(url)
	if err != nil {
		return map[string]string{"url": url}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	name := filepath.Base(resp.Request.URL.Path)
	if name == "" || name == "/" || name == "." {
		name = fmt.Sprintf("download-%d", time.Now().Unix())
	}
	path := filepath.Join(dir, "downloads", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return map[string]string{"url": url}, fmt.Errorf("save %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return map[string]string{
		"url":    url,
		"path":   path,
		"bytes":  strconv.FormatInt(n, 10),
		"status": strconv.Itoa(resp.StatusCode),
	}, nil
}

func (r *Runner) checkEmail(action protocol.ActionMessage) (map[string]string, error) {
	// No real mailbox in the lab; report a plausible unread count derived
	// from the request so repeated checks vary.
	unread := len(action.ID) % 7
	return map[string]string{
		"client": nonEmpty(action.Target, "webmail"),
		"unread": strconv.Itoa(unread),
	}, nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
