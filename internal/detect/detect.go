// Package detect classifies a root directory into a project archetype
// from marker files. The archetype drives crawler selection.
package detect

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ProjectType is the detected archetype of a codebase root.
type ProjectType string

const (
	DotNetCore      ProjectType = "DotNetCore"
	DotNetFramework ProjectType = "DotNetFramework"
	WebForms        ProjectType = "WebForms"
	Python          ProjectType = "Python"
	NodeJS          ProjectType = "NodeJS"
	Angular         ProjectType = "Angular"
	React           ProjectType = "React"
	Vue             ProjectType = "Vue"
	Java            ProjectType = "Java"
	SQLDatabase     ProjectType = "SQLDatabase"
	Mixed           ProjectType = "Mixed"
	Unknown         ProjectType = "Unknown"
)

// sqlFileThreshold is the number of *.sql files above which a tree is
// considered a database project even without a schema marker file.
const sqlFileThreshold = 5

// Detector inspects a directory tree for archetype markers.
type Detector struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Detector {
	return &Detector{logger: logger}
}

// Detect returns the archetype for root. All markers are collected
// before deciding; when several archetypes match, the priority order
// WebForms > DotNetCore > Angular > React applies, and anything else
// resolves to Mixed. No markers means Unknown, as do I/O errors.
func (d *Detector) Detect(root string) ProjectType {
	if _, err := os.Stat(root); err != nil {
		d.logger.Warn("project detection failed", zap.String("root", root), zap.Error(err))
		return Unknown
	}

	var matches []ProjectType
	add := func(pt ProjectType, matched bool) {
		if matched {
			matches = append(matches, pt)
		}
	}

	add(DotNetCore, d.hasDir(root, "Properties") && d.hasFile(root, "Program.cs"))
	add(DotNetFramework, d.hasFile(root, "packages.config") || d.hasFile(root, "App.config"))
	add(WebForms, d.hasDir(root, "App_Code") || d.hasDir(root, "App_Data") || d.hasFile(root, "Web.config"))
	add(Python, d.hasFile(root, "requirements.txt") || d.hasFile(root, "setup.py") || d.hasFile(root, "Pipfile"))
	add(NodeJS, d.hasFile(root, "package.json") && !d.hasFile(root, "angular.json") && !d.hasFile(root, "vue.config.js"))
	add(Angular, d.hasFile(root, "angular.json"))
	add(React, d.packageJSONMentionsReact(root))
	add(Vue, d.hasFile(root, "vue.config.js") || d.hasFile(root, "nuxt.config.js"))
	add(Java, d.hasFile(root, "pom.xml") || d.hasFile(root, "build.gradle"))
	add(SQLDatabase, d.isSQLProject(root))

	switch len(matches) {
	case 0:
		return Unknown
	case 1:
		return matches[0]
	}

	for _, preferred := range []ProjectType{WebForms, DotNetCore, Angular, React} {
		for _, m := range matches {
			if m == preferred {
				return preferred
			}
		}
	}
	return Mixed
}

func (d *Detector) hasFile(root, name string) bool {
	info, err := os.Stat(filepath.Join(root, name))
	return err == nil && !info.IsDir()
}

func (d *Detector) hasDir(root, name string) bool {
	info, err := os.Stat(filepath.Join(root, name))
	return err == nil && info.IsDir()
}

func (d *Detector) packageJSONMentionsReact(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return false
	}
	text := string(data)
	return strings.Contains(text, "react") || strings.Contains(text, "react-dom")
}

// isSQLProject checks for schema marker files or more than
// sqlFileThreshold *.sql files anywhere under the tree.
func (d *Detector) isSQLProject(root string) bool {
	if d.hasFile(root, "database.sql") || d.hasFile(root, "schema.sql") {
		return true
	}

	count := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees don't fail detection
		}
		if entry.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".sql") {
			count++
			if count > sqlFileThreshold {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		d.logger.Warn("sql file scan failed", zap.String("root", root), zap.Error(err))
		return false
	}
	return count > sqlFileThreshold
}
