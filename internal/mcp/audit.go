package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/pathutil"
)

// AuditEntry represents a single audit log entry for an MCP tool invocation.
// It captures metadata about the call without including sensitive content.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	Scope      string            `json:"scope"` // "local" or "global"
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"` // sanitized metadata only
}

// auditFile holds a mutex-protected file handle for writing audit entries.
type auditFile struct {
	mu   sync.Mutex
	file *os.File
}

// AuditLogger writes audit entries to JSONL files, routing to local or global
// log based on entry scope. It is safe for concurrent use. A nil AuditLogger
// is safe to use; all methods are no-ops on nil receiver.
type AuditLogger struct {
	local  *auditFile // <root>/.evosim/audit.jsonl
	global *auditFile // ~/.evosim/audit.jsonl
}

// AuditFile is the audit log name inside a state directory.
const AuditFile = "audit.jsonl"

// openAuditFile opens <dir>/.evosim/audit.jsonl for appending. An empty
// dir or an unwritable location yields nil.
func openAuditFile(dir string) *auditFile {
	if dir == "" {
		return nil
	}
	path := filepath.Join(dir, constants.EvosimDirName, AuditFile)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", pathutil.RedactPath(filepath.Dir(path)), err)
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", pathutil.RedactPath(path), err)
		return nil
	}

	return &auditFile{file: f}
}

// write appends a JSON-encoded entry as a single line. Safe to call on nil.
func (af *auditFile) write(entry AuditEntry) {
	if af == nil || af.file == nil {
		return
	}

	af.mu.Lock()
	defer af.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return // silently skip malformed entries
	}

	data = append(data, '\n')
	_, _ = af.file.Write(data)
}

// close closes the underlying file. Safe to call on nil.
func (af *auditFile) close() error {
	if af == nil || af.file == nil {
		return nil
	}

	af.mu.Lock()
	defer af.mu.Unlock()

	return af.file.Close()
}

// NewAuditLogger creates an audit logger with separate local and global log
// files under localDir (the project root) and globalDir (the home directory).
//
// If either file cannot be created, a warning is printed to stderr and that
// scope's logger is nil (non-fatal). If both fail, returns nil.
func NewAuditLogger(localDir, globalDir string) *AuditLogger {
	local := openAuditFile(localDir)
	global := openAuditFile(globalDir)

	// If both failed, return nil (caller checks for nil)
	if local == nil && global == nil {
		return nil
	}

	return &AuditLogger{
		local:  local,
		global: global,
	}
}

// Log appends entry to the global log when its scope is global and to the
// local log otherwise. Safe to call on nil receiver.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}

	if constants.Scope(entry.Scope) == constants.ScopeGlobal {
		a.global.write(entry)
		return
	}
	a.local.write(entry)
}

// Close closes both audit log files. Safe to call on nil receiver.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}

	var firstErr error
	if err := a.local.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.global.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// sanitizeToolParams reduces tool arguments to loggable metadata. Numeric
// run parameters and flags are logged by value; identifiers only by
// presence; anything else is dropped. "_param_count" is always included.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"scope":       true,
		"duration":    true,
		"join_budget": true,
		"seed":        true,
		"save":        true,
		"limit":       true,
		"verify":      true,
	}
	presenceOnlyParams := map[string]bool{
		"run_id": true,
	}

	result := make(map[string]string)
	set := 0
	for key, val := range params {
		if isZero(val) {
			continue
		}
		set++
		if safeValueParams[key] {
			result[key] = fmt.Sprintf("%v", val)
		} else if presenceOnlyParams[key] {
			result[key] = "(set)"
		}
	}

	result["_param_count"] = fmt.Sprintf("%d", set)
	return result
}

// isZero reports whether a tool argument was left at its zero value.
func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case int:
		return x == 0
	case uint64:
		return x == 0
	}
	return false
}

// auditTool records a tool call in the audit log for scope. Empty scope
// means local.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string, scope constants.Scope) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	if scope == "" {
		scope = constants.ScopeLocal
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		Scope:      scope.String(),
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
