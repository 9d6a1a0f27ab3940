package eventlog

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// LogInfo describes one event log on disk.
type LogInfo struct {
	Path    string
	RunID   string
	Size    int64
	ModTime time.Time
}

// RetentionPolicy decides which event logs to keep. Input is newest first.
type RetentionPolicy interface {
	Apply(logs []LogInfo) (keep []LogInfo)
}

// CountPolicy keeps the MaxCount most recent logs.
type CountPolicy struct {
	MaxCount int
}

func (p *CountPolicy) Apply(logs []LogInfo) []LogInfo {
	if len(logs) <= p.MaxCount {
		return logs
	}
	return logs[:max(p.MaxCount, 0)]
}

// AgePolicy keeps logs written within MaxAge.
type AgePolicy struct {
	MaxAge time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (p *AgePolicy) Apply(logs []LogInfo) []LogInfo {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []LogInfo
	for _, l := range logs {
		if l.ModTime.After(cutoff) {
			keep = append(keep, l)
		}
	}
	return keep
}

// SizePolicy keeps logs, newest first, until the total would exceed
// MaxTotalBytes. The newest log is always kept.
type SizePolicy struct {
	MaxTotalBytes int64
}

func (p *SizePolicy) Apply(logs []LogInfo) []LogInfo {
	var keep []LogInfo
	var total int64
	for _, l := range logs {
		if total+l.Size > p.MaxTotalBytes && len(keep) > 0 {
			break
		}
		keep = append(keep, l)
		total += l.Size
	}
	return keep
}

// AllPolicy keeps a log only if every sub-policy keeps it.
type AllPolicy struct {
	Policies []RetentionPolicy
}

func (p *AllPolicy) Apply(logs []LogInfo) []LogInfo {
	keep := logs
	for _, policy := range p.Policies {
		keep = policy.Apply(keep)
	}
	return keep
}

// ListLogs scans dir for event logs, newest first. A missing directory
// has no logs.
func ListLogs(dir string) ([]LogInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading event log directory: %w", err)
	}

	var logs []LogInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, LogInfo{
			Path:    filepath.Join(dir, name),
			RunID:   strings.TrimSuffix(name, Ext),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	slices.SortFunc(logs, func(a, b LogInfo) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return logs, nil
}

// ApplyRetention deletes the logs in dir that policy does not keep and
// returns their paths.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	logs, err := ListLogs(dir)
	if err != nil {
		return nil, err
	}

	keepSet := make(map[string]bool)
	for _, l := range policy.Apply(logs) {
		keepSet[l.Path] = true
	}

	for _, l := range logs {
		if keepSet[l.Path] {
			continue
		}
		if err := os.Remove(l.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(l.Path), err)
		}
		deleted = append(deleted, l.Path)
	}
	return deleted, nil
}

// ParseDuration parses durations like "30d", "2w" or "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}

// ParseSize parses sizes like "100MB", "1GB" or "500KB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longer suffixes first so "MB" is not read as "B"
	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, ss := range suffixes {
		if numStr, ok := strings.CutSuffix(s, ss.suffix); ok {
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size: %q", s)
			}
			return num * ss.multiplier, nil
		}
	}

	return 0, fmt.Errorf("invalid size: %q (expected suffix: B, KB, MB, GB)", s)
}

// Retention describes a configured retention policy in text form. Empty
// fields impose no limit.
type Retention struct {
	MaxCount int
	MaxAge   string
	MaxSize  string
}

// Policy builds the policy for r, or nil when r sets no limit.
func (r Retention) Policy() (RetentionPolicy, error) {
	var policies []RetentionPolicy
	if r.MaxCount > 0 {
		policies = append(policies, &CountPolicy{MaxCount: r.MaxCount})
	}
	if r.MaxAge != "" {
		d, err := ParseDuration(r.MaxAge)
		if err != nil {
			return nil, err
		}
		policies = append(policies, &AgePolicy{MaxAge: d})
	}
	if r.MaxSize != "" {
		n, err := ParseSize(r.MaxSize)
		if err != nil {
			return nil, err
		}
		policies = append(policies, &SizePolicy{MaxTotalBytes: n})
	}

	switch len(policies) {
	case 0:
		return nil, nil
	case 1:
		return policies[0], nil
	default:
		return &AllPolicy{Policies: policies}, nil
	}
}
