package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"gopkg.in/yaml.v3"
)

// ImportPolicy decides which uploads are accepted. It is policy, not
// structure: a file that passes may still produce row errors.
type ImportPolicy struct {
	MaxBytes   int64               `yaml:"max_bytes"`
	Extensions []string            `yaml:"extensions"`
	MIMETypes  map[string][]string `yaml:"mime_types"`
}

var defaultMIMETypes = map[string][]string{
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"},
	".xls":  {"application/vnd.ms-excel", "application/x-ole-storage"},
	".csv":  {"text/csv", "text/plain"},
	".json": {"application/json", "text/plain"},
}

func DefaultImportPolicy(maxBytes int64, extensions []string) ImportPolicy {
	p := ImportPolicy{MaxBytes: maxBytes, Extensions: extensions, MIMETypes: map[string][]string{}}
	for ext, types := range defaultMIMETypes {
		p.MIMETypes[ext] = append([]string(nil), types...)
	}
	return p.normalized()
}

// LoadImportPolicy overlays the YAML file at path on base. An empty path
// returns base unchanged.
func LoadImportPolicy(path string, base ImportPolicy) (ImportPolicy, error) {
	if strings.TrimSpace(path) == "" {
		return base.normalized(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportPolicy{}, fmt.Errorf("read import policy: %w", err)
	}
	var file ImportPolicy
	if err := yaml.Unmarshal(data, &file); err != nil {
		return ImportPolicy{}, fmt.Errorf("parse import policy %s: %w", path, err)
	}
	out := base
	if file.MaxBytes > 0 {
		out.MaxBytes = file.MaxBytes
	}
	if len(file.Extensions) > 0 {
		out.Extensions = file.Extensions
	}
	if len(file.MIMETypes) > 0 {
		out.MIMETypes = map[string][]string{}
		for ext, types := range base.MIMETypes {
			out.MIMETypes[ext] = types
		}
		for ext, types := range file.MIMETypes {
			out.MIMETypes[normalizeExt(ext)] = types
		}
	}
	return out.normalized(), nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func (p ImportPolicy) normalized() ImportPolicy {
	exts := make([]string, 0, len(p.Extensions))
	for _, e := range p.Extensions {
		if e = normalizeExt(e); e != "" {
			exts = append(exts, e)
		}
	}
	p.Extensions = exts
	return p
}

func (p ImportPolicy) allows(ext string) bool {
	for _, e := range p.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// FileIssue is one reason an upload was refused.
type FileIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	IssueEmpty     = "empty"
	IssueTooLarge  = "too_large"
	IssueExtension = "extension"
	IssueContent   = "content_type"
)

// Check returns every policy violation of the named upload; nil means ok.
func (p ImportPolicy) Check(name string, content []byte) []FileIssue {
	var issues []FileIssue
	ext := strings.ToLower(filepath.Ext(name))
	if !p.allows(ext) {
		issues = append(issues, FileIssue{
			Code:    IssueExtension,
			Message: fmt.Sprintf("extension %q is not allowed (allowed: %s)", ext, strings.Join(p.Extensions, ", ")),
		})
	}
	if len(content) == 0 {
		return append(issues, FileIssue{Code: IssueEmpty, Message: "file is empty"})
	}
	if p.MaxBytes > 0 && int64(len(content)) > p.MaxBytes {
		issues = append(issues, FileIssue{
			Code:    IssueTooLarge,
			Message: fmt.Sprintf("file is %d bytes, limit is %d", len(content), p.MaxBytes),
		})
	}
	if allowed, ok := p.MIMETypes[ext]; ok && len(allowed) > 0 {
		detected := mimetype.Detect(content)
		if !matchesMIME(detected, allowed) {
			issues = append(issues, FileIssue{
				Code:    IssueContent,
				Message: fmt.Sprintf("content looks like %s, not a %s file", detected.String(), ext),
			})
		}
	}
	return issues
}

// matchesMIME walks the detected type and its parents, so a csv detected as
// text/plain still passes.
func matchesMIME(m *mimetype.MIME, allowed []string) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		for _, a := range allowed {
			if cur.Is(a) {
				return true
			}
		}
	}
	return false
}
